package view

import (
	"log"
	"sort"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

// OrderedMessages materializes the display order from one full snapshot.
// Each call is a pure function of its input: the previous order is never
// consulted, so replaying a snapshot produces an identical result.
//
// Messages whose server timestamp is still pending sort after every resolved
// message, keeping their snapshot arrival order among themselves. They move
// to their true position once a later snapshot carries the assigned value.
func OrderedMessages(snap chat.Snapshot) []chat.Message {
	msgs := make([]chat.Message, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		m, err := chat.MessageFromDocument(doc)
		if err != nil {
			log.Printf("[reconcile] dropping undecodable message %s: %v", doc.ID, err)
			continue
		}
		if !m.Valid() {
			log.Printf("[reconcile] dropping malformed message %s", doc.ID)
			continue
		}
		msgs = append(msgs, m)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch {
		case a.Pending():
			return false
		case b.Pending():
			return true
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	return msgs
}
