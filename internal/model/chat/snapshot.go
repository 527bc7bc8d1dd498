package chat

import "encoding/json"

// Collection paths served by the remote store.
const (
	CollectionMessages = "messages"
	CollectionTyping   = "typingStatus"
)

// ServerTimestamp marks a field value the store must replace with its own
// clock at write time. Clients never assign timestamps themselves.
var ServerTimestamp = map[string]any{"__serverTimestamp": true}

// IsServerTimestamp reports whether a decoded field value is the
// ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	_, ok = m["__serverTimestamp"]
	return ok
}

// Document is one record in a snapshot: an id plus its raw field payload.
type Document struct {
	ID     string          `json:"id"`
	Fields json.RawMessage `json:"fields"`
}

// Snapshot is a complete, self-consistent listing of a collection, delivered
// as a unit on every change. Document order is unspecified; consumers sort.
type Snapshot struct {
	Collection string     `json:"collection"`
	Documents  []Document `json:"documents"`
}
