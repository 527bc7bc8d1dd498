package chat

import (
	"encoding/json"
	"time"
)

// PresenceRecord is the per-user ephemeral typing status document. The
// document id is the user identity; upserts replace the whole record.
type PresenceRecord struct {
	UserID    string    `json:"-"`
	IsTyping  bool      `json:"isTyping"`
	Nickname  string    `json:"nickname,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// PresenceFromDocument decodes a snapshot document into a PresenceRecord.
func PresenceFromDocument(doc Document) (PresenceRecord, error) {
	var rec PresenceRecord
	if err := json.Unmarshal(doc.Fields, &rec); err != nil {
		return PresenceRecord{}, err
	}
	rec.UserID = doc.ID
	return rec, nil
}
