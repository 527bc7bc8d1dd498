// Package ui renders the chat as a single repainted terminal page and maps
// line input onto the composer: plain text sends, slash commands edit,
// delete, cancel, change the nickname, or insert an emoji.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xlzhou/vibechat/internal/model/chat"
	"github.com/xlzhou/vibechat/internal/nickname"
	"github.com/xlzhou/vibechat/internal/service/composer"
	"github.com/xlzhou/vibechat/internal/service/view"
)

var errQuit = errors.New("quit")

// emojiPalette mirrors the picker of the web client.
var emojiPalette = []string{"😊", "😂", "❤️", "👍", "🙏", "🔥", "🎉", "💡", "🚀", "✨"}

// UI owns the composer-facing input loop and repaints the page whenever the
// reconciler signals a change. Composer state is mutated only here.
type UI struct {
	rec  *view.Reconciler
	comp *composer.Composer
	self string

	in  io.Reader
	out io.Writer

	mu            sync.Mutex
	banner        string
	pendingDelete string
}

// New builds the terminal front-end for one session identity.
func New(rec *view.Reconciler, comp *composer.Composer, self string, in io.Reader, out io.Writer) *UI {
	return &UI{rec: rec, comp: comp, self: self, in: in, out: out}
}

// Run repaints until the context ends or the user quits.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-u.rec.Changed():
				u.redraw()
			}
		}
	}()

	u.redraw()
	scanner := bufio.NewScanner(u.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if err := u.handleLine(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
		u.redraw()
	}
	return scanner.Err()
}

func (u *UI) handleLine(ctx context.Context, line string) error {
	if pending := u.takePendingDelete(); pending != "" {
		if line == "y" || line == "Y" {
			if err := u.comp.DeleteMessage(ctx, pending); err != nil {
				u.setBanner("Failed to delete message. You can only delete your own messages.")
				return nil
			}
		}
		u.setBanner("")
		return nil
	}

	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case line == "/cancel":
		u.comp.CancelEdit()
		u.setBanner("")
		return nil
	case line == "/help":
		u.setBanner("Commands: /edit <n>, /delete <n>, /cancel, /nick <name>, /emoji <1-10>, /quit")
		return nil
	case strings.HasPrefix(line, "/nick"):
		u.changeNickname(strings.TrimSpace(strings.TrimPrefix(line, "/nick")))
		return nil
	case strings.HasPrefix(line, "/edit"):
		u.beginEdit(strings.TrimSpace(strings.TrimPrefix(line, "/edit")))
		return nil
	case strings.HasPrefix(line, "/delete"):
		u.confirmDelete(strings.TrimSpace(strings.TrimPrefix(line, "/delete")))
		return nil
	case strings.HasPrefix(line, "/emoji"):
		u.insertEmoji(strings.TrimSpace(strings.TrimPrefix(line, "/emoji")))
		return nil
	case strings.HasPrefix(line, "/"):
		u.setBanner("Unknown command. Try /help.")
		return nil
	default:
		u.send(ctx, line)
		return nil
	}
}

func (u *UI) send(ctx context.Context, line string) {
	// While editing, the typed line replaces the seeded draft outright; when
	// composing, it extends whatever /emoji already appended.
	if u.comp.EditingID() != "" {
		u.comp.SetDraft(line)
	} else {
		u.comp.SetDraft(u.comp.Draft() + line)
	}

	switch err := u.comp.Submit(ctx); {
	case err == nil:
		u.setBanner("")
	case errors.Is(err, composer.ErrEmptyDraft):
		u.setBanner("Please type a message before sending.")
	case errors.Is(err, composer.ErrNoNickname):
		u.setBanner("Please set your nickname (/nick) before sending messages.")
	case errors.Is(err, composer.ErrNoIdentity):
		u.setBanner("Still signing in, try again in a moment.")
	default:
		u.setBanner("Failed to send message. Please try again.")
	}
}

func (u *UI) changeNickname(name string) {
	if name == "" {
		u.setBanner("Usage: /nick <name>")
		return
	}
	if err := nickname.Save(name); err != nil {
		u.setBanner("Could not persist nickname: " + err.Error())
	} else {
		u.setBanner("Nickname updated.")
	}
	u.comp.SetNickname(name)
}

func (u *UI) beginEdit(arg string) {
	m, n, ok := u.messageByOrdinal(arg)
	if !ok {
		return
	}
	if m.SenderID != u.self {
		u.setBanner("You can only edit your own messages.")
		return
	}
	u.comp.BeginEdit(m)
	u.setBanner(fmt.Sprintf("Editing message %d. The next line replaces its text (/cancel to abort).", n))
}

func (u *UI) confirmDelete(arg string) {
	m, n, ok := u.messageByOrdinal(arg)
	if !ok {
		return
	}
	u.mu.Lock()
	u.pendingDelete = m.ID
	u.banner = fmt.Sprintf("Delete message %d? (y/N)", n)
	u.mu.Unlock()
}

func (u *UI) insertEmoji(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(emojiPalette) {
		u.setBanner("Usage: /emoji <1-" + strconv.Itoa(len(emojiPalette)) + ">  " + strings.Join(emojiPalette, " "))
		return
	}
	u.comp.InsertEmoji(emojiPalette[n-1])
	u.setBanner("")
}

func (u *UI) messageByOrdinal(arg string) (chat.Message, int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		u.setBanner("Expected a message number, e.g. /edit 3")
		return chat.Message{}, 0, false
	}
	msgs := u.rec.Messages()
	if n < 1 || n > len(msgs) {
		u.setBanner(fmt.Sprintf("No message %d on screen.", n))
		return chat.Message{}, 0, false
	}
	return msgs[n-1], n, true
}

func (u *UI) takePendingDelete() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	pending := u.pendingDelete
	u.pendingDelete = ""
	return pending
}

func (u *UI) setBanner(msg string) {
	u.mu.Lock()
	u.banner = msg
	u.mu.Unlock()
}

func (u *UI) redraw() {
	u.mu.Lock()
	banner := u.banner
	u.mu.Unlock()

	var b strings.Builder
	b.WriteString("\033[2J\033[H")
	b.WriteString("VibeChat\n")
	fmt.Fprintf(&b, "Your User ID: %s\n", u.self)
	fmt.Fprintf(&b, "Nickname: %s\n", u.comp.Nickname())

	if sub := u.rec.Banner(); sub != "" {
		fmt.Fprintf(&b, "! %s\n", sub)
	}
	if banner != "" {
		fmt.Fprintf(&b, "! %s\n", banner)
	}
	b.WriteString("\n")

	msgs := u.rec.Messages()
	switch {
	case u.rec.Loading():
		b.WriteString("Loading messages...\n")
	case len(msgs) == 0:
		b.WriteString("No messages yet. Start the conversation!\n")
	default:
		for i, m := range msgs {
			b.WriteString(formatMessage(i+1, m, u.self))
		}
	}

	if line := typingLine(u.rec.Typing()); line != "" {
		b.WriteString("\n" + line + "\n")
	}

	b.WriteString("\n")
	if id := u.comp.EditingID(); id != "" {
		b.WriteString("[editing] ")
	}
	b.WriteString("> " + u.comp.Draft())
	fmt.Fprint(u.out, b.String())
}

func formatMessage(n int, m chat.Message, self string) string {
	name := m.DisplayName()
	if m.SenderID == self {
		name = "You"
	}
	edited := ""
	if m.Edited() {
		edited = " (edited)"
	}
	return fmt.Sprintf("[%d] [%s] %s: %s%s\n", n, formatTimestamp(m), name, m.MessageText, edited)
}

func formatTimestamp(m chat.Message) string {
	if m.Pending() {
		return "Sending..."
	}
	return m.CreatedAt.Local().Format("2006-01-02 15:04")
}

func typingLine(typing map[string]string) string {
	if len(typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(typing))
	for _, name := range typing {
		names = append(names, name)
	}
	sort.Strings(names)

	verb := "is"
	if len(names) > 1 {
		verb = "are"
	}
	return strings.Join(names, ", ") + " " + verb + " typing..."
}
