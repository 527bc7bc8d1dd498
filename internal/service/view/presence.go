package view

import (
	"time"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

// TypingFreshness is the maximum age of a presence record before it stops
// counting as "currently typing". Presence is advisory and self-expiring;
// nobody explicitly retracts it.
const TypingFreshness = 2000 * time.Millisecond

// TypingUsers filters a presence snapshot down to the other users actively
// typing right now, keyed by identity. Freshness is judged once, against the
// moment the snapshot is processed; a record going stale afterwards is only
// noticed when the next snapshot arrives. The local identity is excluded
// regardless of its own record.
func TypingUsers(snap chat.Snapshot, self string, now time.Time) map[string]string {
	typing := make(map[string]string)
	for _, doc := range snap.Documents {
		rec, err := chat.PresenceFromDocument(doc)
		if err != nil || rec.UserID == self {
			continue
		}
		if !rec.IsTyping || rec.Timestamp.IsZero() {
			continue
		}
		if now.Sub(rec.Timestamp) >= TypingFreshness {
			continue
		}
		name := rec.Nickname
		if name == "" {
			name = rec.UserID
		}
		typing[rec.UserID] = name
	}
	return typing
}
