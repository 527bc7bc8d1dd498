package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

// Subscription is one live snapshot stream over a collection. Snapshots are
// delivered in the order the service emits them; the channel closes when the
// stream ends for any reason. Cancel must be called on teardown so updates
// stop arriving into a defunct consumer.
type Subscription struct {
	conn      *websocket.Conn
	snapshots chan chat.Snapshot
	errs      chan error

	cancelOnce sync.Once
	done       chan struct{}
}

// Subscribe opens a snapshot stream over the collection. The full current
// snapshot is delivered first, then a fresh one after every change.
func (c *Client) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + c.collectionPath(collection) + "/subscribe"

	header := http.Header{}
	if c.session != "" {
		header.Set("Authorization", "Bearer "+c.session)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: %w (status %d)", collection, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	s := &Subscription{
		conn:      conn,
		snapshots: make(chan chat.Snapshot, 1),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// Snapshots returns the stream of full-collection snapshots.
func (s *Subscription) Snapshots() <-chan chat.Snapshot {
	return s.snapshots
}

// Err reports a stream failure, at most once, then closes. A cancelled
// subscription closes without reporting anything.
func (s *Subscription) Err() <-chan error {
	return s.errs
}

// Cancel releases the stream. Idempotent.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Subscription) readPump() {
	defer close(s.snapshots)
	defer close(s.errs)
	for {
		var snap chat.Snapshot
		if err := s.conn.ReadJSON(&snap); err != nil {
			select {
			case <-s.done:
			default:
				s.errs <- err
				s.conn.Close()
			}
			return
		}

		select {
		case s.snapshots <- snap:
		case <-s.done:
			return
		}
	}
}
