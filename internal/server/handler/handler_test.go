package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/xlzhou/vibechat/internal/model/chat"
	"github.com/xlzhou/vibechat/internal/server/hub"
	"github.com/xlzhou/vibechat/internal/server/store"
)

const testSecret = "test-secret"

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := New(st, hub.New(), testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func authenticate(t *testing.T, r http.Handler, customToken string) (identity, session string) {
	t.Helper()
	resp := postJSON(t, r, "/auth", "", map[string]string{"token": customToken})
	if resp.Code != http.StatusOK {
		t.Fatalf("auth: expected 200, got %d", resp.Code)
	}
	var body struct {
		UserID       string `json:"userId"`
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return body.UserID, body.SessionToken
}

func TestAuthAnonymous(t *testing.T) {
	r := setupRouter(t)

	identity, session := authenticate(t, r, "")
	if !strings.HasPrefix(identity, "anon-") {
		t.Fatalf("expected an anonymous identity, got %s", identity)
	}
	if session == "" {
		t.Fatal("expected a session token")
	}
}

func TestAuthCustomToken(t *testing.T) {
	r := setupRouter(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-42"}).
		SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	identity, _ := authenticate(t, r, token)
	if identity != "user-42" {
		t.Fatalf("expected identity from token subject, got %s", identity)
	}
}

func TestAuthBadTokenFallsBackToAnonymous(t *testing.T) {
	r := setupRouter(t)

	identity, _ := authenticate(t, r, "not-a-jwt")
	if !strings.HasPrefix(identity, "anon-") {
		t.Fatalf("expected anonymous fallback, got %s", identity)
	}
}

func TestWritesRequireSession(t *testing.T) {
	r := setupRouter(t)

	resp := postJSON(t, r, "/apps/dev/messages", "", map[string]any{"messageText": "hi"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestDeleteOtherUsersMessageIsForbidden(t *testing.T) {
	r := setupRouter(t)

	u1, s1 := authenticate(t, r, "")
	_, s2 := authenticate(t, r, "")

	resp := postJSON(t, r, "/apps/dev/messages", s1, map[string]any{
		"senderId":       u1,
		"senderNickname": "Ana",
		"messageText":    "hi",
		"timestamp":      chat.ServerTimestamp,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	del := httptest.NewRequest(http.MethodDelete, "/apps/dev/messages/"+created.ID, nil)
	del.Header.Set("Authorization", "Bearer "+s2)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, del)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting another user's message, got %d", rec.Code)
	}

	del = httptest.NewRequest(http.MethodDelete, "/apps/dev/messages/"+created.ID, nil)
	del.Header.Set("Authorization", "Bearer "+s1)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d", rec.Code)
	}
}

func TestCreateOverridesClaimedSender(t *testing.T) {
	r := setupRouter(t)

	u1, s1 := authenticate(t, r, "")

	resp := postJSON(t, r, "/apps/dev/messages", s1, map[string]any{
		"senderId":    "somebody-else",
		"messageText": "hi",
		"timestamp":   chat.ServerTimestamp,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.Code)
	}

	// The stored sender is the session identity, so only u1 can delete it.
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	del := httptest.NewRequest(http.MethodDelete, "/apps/dev/messages/"+created.ID, nil)
	del.Header.Set("Authorization", "Bearer "+s1)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for %s deleting own message, got %d", u1, rec.Code)
	}
}

func TestUpdateOtherUsersPresenceIsForbidden(t *testing.T) {
	r := setupRouter(t)

	u1, s1 := authenticate(t, r, "")
	_, s2 := authenticate(t, r, "")

	put := httptest.NewRequest(http.MethodPut, "/apps/dev/typingStatus/"+u1,
		bytes.NewReader([]byte(`{"isTyping":true,"nickname":"Ana"}`)))
	put.Header.Set("Authorization", "Bearer "+s1)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, put)
	if rec.Code != http.StatusOK {
		t.Fatalf("presence upsert: expected 200, got %d", rec.Code)
	}

	patch := httptest.NewRequest(http.MethodPatch, "/apps/dev/typingStatus/"+u1,
		bytes.NewReader([]byte(`{"isTyping":false}`)))
	patch.Header.Set("Authorization", "Bearer "+s2)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, patch)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 patching another user's presence, got %d", rec.Code)
	}
}

func TestCreateStampsSenderWhenOmitted(t *testing.T) {
	r := setupRouter(t)

	_, s1 := authenticate(t, r, "")
	_, s2 := authenticate(t, r, "")

	resp := postJSON(t, r, "/apps/dev/messages", s1, map[string]any{
		"messageText": "hi",
		"timestamp":   chat.ServerTimestamp,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	// The document is owned by its creator even though the payload never
	// named a sender.
	del := httptest.NewRequest(http.MethodDelete, "/apps/dev/messages/"+created.ID, nil)
	del.Header.Set("Authorization", "Bearer "+s2)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, del)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting a message created without a claimed sender, got %d", rec.Code)
	}
}

func TestUpdateMissingDocumentIs404(t *testing.T) {
	r := setupRouter(t)
	_, s1 := authenticate(t, r, "")

	req := httptest.NewRequest(http.MethodPatch, "/apps/dev/messages/nope", bytes.NewReader([]byte(`{"messageText":"x"}`)))
	req.Header.Set("Authorization", "Bearer "+s1)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubscribeStreamsSnapshots(t *testing.T) {
	r := setupRouter(t)
	ts := httptest.NewServer(r)
	defer ts.Close()

	u1, s1 := authenticate(t, r, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/apps/dev/messages/subscribe?token=" + s1
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var initial chat.Snapshot
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if len(initial.Documents) != 0 {
		t.Fatalf("expected an empty initial snapshot, got %d docs", len(initial.Documents))
	}

	resp := postJSON(t, r, "/apps/dev/messages", s1, map[string]any{
		"senderId":    u1,
		"messageText": "hi",
		"timestamp":   chat.ServerTimestamp,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.Code)
	}

	var next chat.Snapshot
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read change snapshot: %v", err)
	}
	if len(next.Documents) != 1 {
		t.Fatalf("expected the new document in the snapshot, got %d docs", len(next.Documents))
	}
	m, err := chat.MessageFromDocument(next.Documents[0])
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if m.MessageText != "hi" || m.Pending() {
		t.Fatalf("unexpected streamed message: %+v", m)
	}
}
