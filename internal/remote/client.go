package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is the result of authenticating against the remote service: a
// stable opaque user id for the session plus the session token presented on
// every subsequent call.
type Identity struct {
	UserID       string `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

// APIError is a failed remote call as reported by the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %s (status %d)", e.Message, e.Status)
}

// Client talks to the document-store service over HTTP for writes and
// websocket for subscriptions. It is constructed once by the composition
// root and passed by reference; there is no package-level instance.
type Client struct {
	baseURL   string
	appID     string
	authToken string
	http      *http.Client

	session string
}

// NewClient prepares a client for one deployment-scoped application id.
// authToken is the optional pre-issued credential; empty means anonymous.
func NewClient(baseURL, appID, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// Authenticate establishes the session identity. A configured token is
// offered first; the service falls back to minting an anonymous identity
// when the token is absent or rejected. Must complete before any other call.
func (c *Client) Authenticate(ctx context.Context) (Identity, error) {
	var id Identity
	err := c.do(ctx, http.MethodPost, "/api/auth", map[string]string{"token": c.authToken}, &id)
	if err != nil {
		return Identity{}, fmt.Errorf("authenticate: %w", err)
	}
	c.session = id.SessionToken
	return id, nil
}

// Create adds a document; the server assigns the id and resolves any
// server-timestamp sentinel fields.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collection), fields, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Update partially overwrites an existing document's fields. Fails when the
// id is absent or the document is owned by someone else.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, c.documentPath(collection, id), fields, nil)
}

// Upsert creates or fully replaces the document with the given id. Used for
// presence, where the id is the user identity.
func (c *Client) Upsert(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPut, c.documentPath(collection, id), fields, nil)
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.documentPath(collection, id), nil, nil)
}

func (c *Client) collectionPath(collection string) string {
	return fmt.Sprintf("/api/apps/%s/%s", url.PathEscape(c.appID), url.PathEscape(collection))
}

func (c *Client) documentPath(collection, id string) string {
	return c.collectionPath(collection) + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
