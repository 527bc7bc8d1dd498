package chat

import (
	"encoding/json"
	"time"
)

// Message is one chat utterance as materialized from a snapshot.
type Message struct {
	ID             string    `json:"-"`
	SenderID       string    `json:"senderId"`
	SenderNickname string    `json:"senderNickname,omitempty"`
	MessageText    string    `json:"messageText"`
	CreatedAt      time.Time `json:"timestamp,omitzero"`
	EditedAt       time.Time `json:"editedAt,omitzero"`
}

// Valid reports whether the message carries the fields rendering requires.
// Entries failing this check are filtered out of the materialized view.
func (m Message) Valid() bool {
	return m.ID != "" && m.SenderID != "" && m.MessageText != ""
}

// Pending reports whether the server has not yet assigned a timestamp.
func (m Message) Pending() bool {
	return m.CreatedAt.IsZero()
}

// Edited reports whether the message has been rewritten since creation.
func (m Message) Edited() bool {
	return !m.EditedAt.IsZero()
}

// DisplayName returns the sender's nickname, falling back to the sender id.
func (m Message) DisplayName() string {
	if m.SenderNickname != "" {
		return m.SenderNickname
	}
	return m.SenderID
}

// MessageFromDocument decodes a snapshot document into a Message. The
// document id rides outside the field payload and is merged in here.
func MessageFromDocument(doc Document) (Message, error) {
	var m Message
	if err := json.Unmarshal(doc.Fields, &m); err != nil {
		return Message{}, err
	}
	m.ID = doc.ID
	return m, nil
}
