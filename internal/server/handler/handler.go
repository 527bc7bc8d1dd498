package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xlzhou/vibechat/internal/model/chat"
	"github.com/xlzhou/vibechat/internal/server/hub"
	"github.com/xlzhou/vibechat/internal/server/store"
	"github.com/xlzhou/vibechat/pkg/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Handler serves the document-store contract: token/anonymous auth, document
// CRUD, and websocket snapshot subscriptions.
type Handler struct {
	store     *store.Store
	hub       *hub.Hub
	jwtSecret []byte
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]string
}

// New wires the handler. jwtSecret may be empty, which disables token-based
// sign-in; every session is then anonymous.
func New(st *store.Store, h *hub.Hub, jwtSecret string) *Handler {
	return &Handler{
		store:     st,
		hub:       h,
		jwtSecret: []byte(jwtSecret),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]string),
	}
}

// RegisterRoutes mounts every endpoint under the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth", h.handleAuth)
	r.Route("/apps/{appID}/{collection}", func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/subscribe", h.handleSubscribe)
		r.Post("/", h.handleCreate)
		r.Patch("/{docID}", h.handleUpdate)
		r.Put("/{docID}", h.handleUpsert)
		r.Delete("/{docID}", h.handleDelete)
	})
}

// handleAuth yields a stable identity for the session. A presented token is
// verified as a JWT and its subject becomes the identity; an absent or
// rejected token falls back to a freshly minted anonymous identity.
func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := ""
	if payload.Token != "" && len(h.jwtSecret) > 0 {
		sub, err := h.verifyToken(payload.Token)
		if err != nil {
			log.Printf("[auth] custom token rejected, falling back to anonymous: %v", err)
		} else {
			identity = sub
		}
	}
	if identity == "" {
		identity = "anon-" + uuid.NewString()
	}

	session := uuid.NewString()
	h.mu.Lock()
	h.sessions[session] = identity
	h.mu.Unlock()

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"userId":       identity,
		"sessionToken": session,
	})
}

func (h *Handler) verifyToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// requireSession resolves the bearer session token (header or, for websocket
// dials that cannot set headers, the token query parameter) into an identity.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		h.mu.Lock()
		identity, ok := h.sessions[token]
		h.mu.Unlock()
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "missing or unknown session token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requester(r *http.Request) string {
	id, _ := r.Context().Value(identityKey).(string)
	return id
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "appID")
	collection := chi.URLParam(r, "collection")

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	// The sender identity is never taken on trust from the payload; it is
	// always the session identity, even when the payload omits it.
	fields["senderId"] = requester(r)

	id, err := h.store.Create(r.Context(), app, collection, fields)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.pushSnapshot(app, collection)
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "appID")
	collection := chi.URLParam(r, "collection")
	docID := chi.URLParam(r, "docID")

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	if err := h.store.Update(r.Context(), app, collection, docID, requester(r), fields); err != nil {
		respondStoreError(w, err)
		return
	}

	h.pushSnapshot(app, collection)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": docID})
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "appID")
	collection := chi.URLParam(r, "collection")
	docID := chi.URLParam(r, "docID")

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	if err := h.store.Upsert(r.Context(), app, collection, docID, requester(r), fields); err != nil {
		respondStoreError(w, err)
		return
	}

	h.pushSnapshot(app, collection)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": docID})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "appID")
	collection := chi.URLParam(r, "collection")
	docID := chi.URLParam(r, "docID")

	if err := h.store.Delete(r.Context(), app, collection, docID, requester(r)); err != nil {
		respondStoreError(w, err)
		return
	}

	h.pushSnapshot(app, collection)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"id": docID})
}

// handleSubscribe upgrades to a websocket and streams full snapshots: the
// current one immediately, then a fresh one after every change.
func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "appID")
	collection := chi.URLParam(r, "collection")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(app, collection)
	defer h.hub.Unsubscribe(app, collection, sub)

	initial, err := h.snapshot(r.Context(), app, collection)
	if err != nil {
		log.Printf("[hub] initial snapshot failed: %v", err)
		return
	}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	// Drain the read side only to learn when the peer goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *Handler) snapshot(ctx context.Context, app, collection string) (chat.Snapshot, error) {
	docs, err := h.store.List(ctx, app, collection)
	if err != nil {
		return chat.Snapshot{}, err
	}
	return chat.Snapshot{Collection: collection, Documents: docs}, nil
}

// pushSnapshot rebroadcasts the full collection after a change. Subscribers
// always see a complete, self-consistent listing, never a delta.
func (h *Handler) pushSnapshot(app, collection string) {
	snap, err := h.snapshot(context.Background(), app, collection)
	if err != nil {
		log.Printf("[hub] snapshot after write failed: %v", err)
		return
	}
	h.hub.Broadcast(app, collection, snap)
}

func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	fields := make(map[string]any)
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return fields, true
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
