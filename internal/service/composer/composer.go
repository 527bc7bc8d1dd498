package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

var (
	ErrEmptyDraft = errors.New("message text is empty")
	ErrNoIdentity = errors.New("not signed in yet")
	ErrNoNickname = errors.New("nickname is not set")
)

// Writer is the slice of the remote store the composer issues writes through.
type Writer interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Upsert(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Composer reconciles keystrokes, the pending-edit state, and the typing
// emitter into outgoing writes. The draft represents a new message while no
// edit target is set; at most one message is being edited at a time.
//
// Message writes are not optimistic: on failure the draft and edit target are
// kept exactly as they were, and the user resubmits.
type Composer struct {
	writer  Writer
	emitter *Emitter

	mu        sync.Mutex
	identity  string
	nickname  string
	draft     string
	editingID string
}

// New builds a composer publishing its typing state through w.
func New(w Writer) *Composer {
	c := &Composer{writer: w}
	c.emitter = NewEmitter(c.publishTyping, DebounceDelay)
	return c
}

// SetIdentity installs the session identity once authentication settles.
func (c *Composer) SetIdentity(id string) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

// SetNickname installs the display name used on sends and presence updates.
func (c *Composer) SetNickname(name string) {
	c.mu.Lock()
	c.nickname = strings.TrimSpace(name)
	c.mu.Unlock()
}

// Nickname returns the current display name.
func (c *Composer) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

// Draft returns the current input buffer.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// EditingID returns the id of the message being edited, empty when the draft
// is a new message.
func (c *Composer) EditingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingID
}

// SetDraft replaces the input buffer, signalling typing when identity and
// nickname are established.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	ready := c.identity != "" && c.nickname != ""
	typing := len(text) > 0
	c.mu.Unlock()

	if ready {
		c.emitter.Trigger(typing)
	}
}

// InsertEmoji appends an emoji to the draft, re-signalling typing as if a
// keystroke occurred.
func (c *Composer) InsertEmoji(emoji string) {
	c.mu.Lock()
	c.draft += emoji
	ready := c.identity != "" && c.nickname != ""
	c.mu.Unlock()

	if ready {
		c.emitter.Trigger(true)
	}
}

// BeginEdit retargets the draft at an existing message, seeding it with the
// message's current text. Beginning a new edit while one is in progress
// silently replaces the target; unsaved changes to the prior target are lost.
func (c *Composer) BeginEdit(m chat.Message) {
	c.mu.Lock()
	c.editingID = m.ID
	c.draft = m.MessageText
	c.mu.Unlock()
}

// CancelEdit discards the draft and returns to composing a new message. No
// write is issued.
func (c *Composer) CancelEdit() {
	c.mu.Lock()
	c.editingID = ""
	c.draft = ""
	c.mu.Unlock()
}

// Submit issues exactly one write for the current draft: an update of the
// edit target when one is set, otherwise a create. Validation failures leave
// the state untouched and reach the remote store not at all.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	draft := c.draft
	identity := c.identity
	nickname := c.nickname
	editingID := c.editingID
	c.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return ErrEmptyDraft
	}
	if identity == "" {
		return ErrNoIdentity
	}
	if nickname == "" {
		return ErrNoNickname
	}

	if editingID != "" {
		err := c.writer.Update(ctx, chat.CollectionMessages, editingID, map[string]any{
			"messageText": draft,
			"editedAt":    chat.ServerTimestamp,
		})
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
	} else {
		_, err := c.writer.Create(ctx, chat.CollectionMessages, map[string]any{
			"senderId":       identity,
			"senderNickname": nickname,
			"messageText":    draft,
			"timestamp":      chat.ServerTimestamp,
		})
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	c.mu.Lock()
	c.draft = ""
	c.editingID = ""
	c.mu.Unlock()

	// The user has finished composing; clear presence immediately instead of
	// waiting out the debounce window.
	c.emitter.SetNow(false)
	return nil
}

// DeleteMessage removes a message by id. The store enforces ownership; a
// rejection surfaces here and nothing is removed locally.
func (c *Composer) DeleteMessage(ctx context.Context, id string) error {
	if err := c.writer.Delete(ctx, chat.CollectionMessages, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Close stops the typing emitter.
func (c *Composer) Close() {
	c.emitter.Stop()
}

func (c *Composer) publishTyping(ctx context.Context, typing bool) error {
	c.mu.Lock()
	identity := c.identity
	nickname := c.nickname
	c.mu.Unlock()

	if identity == "" || nickname == "" {
		return nil
	}
	return c.writer.Upsert(ctx, chat.CollectionTyping, identity, map[string]any{
		"isTyping":  typing,
		"nickname":  nickname,
		"timestamp": chat.ServerTimestamp,
	})
}
