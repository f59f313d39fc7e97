package chat

import (
	"context"

	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/store"
)

// Refresher updates chat-list metadata after a generation ends. The request
// executor satisfies this; the assembler never talks to the network itself.
type Refresher interface {
	RefreshChat(ctx context.Context, chatID string) error
}

// Assembler folds streamed response fragments into the conversation history
// held in the store. History slices are copy-on-write: the store only
// notifies on replacement, so every mutation builds a new slice with a new
// last element.
type Assembler struct {
	store   *store.Store
	log     *logger.Logger
	refresh Refresher
}

// NewAssembler creates an assembler writing through st. refresh may be nil
// when no list metadata needs updating (tests, headless tools).
func NewAssembler(st *store.Store, log *logger.Logger, refresh Refresher) *Assembler {
	if log == nil {
		log = logger.Global()
	}
	return &Assembler{store: st, log: log.WithPrefix("assembler"), refresh: refresh}
}

// History returns the current conversation history.
func (a *Assembler) History() []Message {
	h, _ := a.store.Get(store.KeyHistory).([]Message)
	return h
}

// ReplaceHistory installs a freshly fetched history wholesale. In-progress
// entries always yield to the server copy. Fetched entries are frozen, so a
// fragment from a stream still running opens a new assistant entry instead
// of growing a message the server already considers settled.
func (a *Assembler) ReplaceHistory(msgs []Message) {
	next := make([]Message, len(msgs))
	copy(next, msgs)
	for i := range next {
		next[i].Final = true
	}
	a.store.Set(store.KeyHistory, next)
}

// AppendUser appends a user message to the history.
func (a *Assembler) AppendUser(msg Message) {
	msg.Role = RoleUser
	a.append(msg)
}

// AppendError appends an error-flagged assistant message. The conversation
// history stays the durable record of what was attempted, so chat-relevant
// failures land inline instead of in a dialog.
func (a *Assembler) AppendError(text string) {
	a.append(Message{Role: RoleAssistant, Content: text, Error: true})
}

// ApplyFragment folds one streamed fragment into the history. If the last
// entry is an open assistant message the fragment is appended to its
// content; otherwise a new assistant entry is started. The role/error guard
// means a stream observed from its middle (reconnect) or a reply following a
// failed turn never leaks into a finished message.
func (a *Assembler) ApplyFragment(chunk string, attachments []Attachment) {
	history := a.History()
	last := len(history) - 1

	if last < 0 || !history[last].streamTarget() {
		a.append(Message{Role: RoleAssistant, Content: chunk, Attachments: attachments})
		return
	}

	next := make([]Message, len(history))
	copy(next, history)
	grown := next[last]
	grown.Content += chunk
	if len(attachments) > 0 {
		grown.Attachments = append(append([]Attachment(nil), grown.Attachments...), attachments...)
	}
	next[last] = grown
	a.store.Set(store.KeyHistory, next)
}

// ApplyFinal installs the authoritative full reply of the current
// generation. An open assistant entry is replaced with the full text; when
// no entry is open (zero fragments observed, e.g. a reconnect mid-stream) a
// new one is appended.
func (a *Assembler) ApplyFinal(reply string, attachments []Attachment) {
	history := a.History()
	last := len(history) - 1

	if last < 0 || !history[last].streamTarget() {
		a.append(Message{Role: RoleAssistant, Content: reply, Attachments: attachments, Final: true})
		return
	}

	next := make([]Message, len(history))
	copy(next, history)
	next[last] = Message{
		Role:        RoleAssistant,
		Content:     reply,
		Attachments: attachments,
		Timestamp:   next[last].Timestamp,
		Final:       true,
	}
	a.store.Set(store.KeyHistory, next)
}

// FreezeLast closes the open assistant entry, if any. After a terminal event
// no further appends are valid for that entry.
func (a *Assembler) FreezeLast() {
	history := a.History()
	last := len(history) - 1
	if last < 0 || !history[last].streamTarget() {
		return
	}
	next := make([]Message, len(history))
	copy(next, history)
	next[last].Final = true
	a.store.Set(store.KeyHistory, next)
}

// FinishStream runs the post-terminal bookkeeping: the open entry is frozen
// and the chat list metadata is refreshed so the conversation's
// last-updated timestamp moves.
func (a *Assembler) FinishStream(ctx context.Context, chatID string) {
	a.FreezeLast()
	if a.refresh == nil || chatID == "" {
		return
	}
	if err := a.refresh.RefreshChat(ctx, chatID); err != nil {
		a.log.Warn("chat list refresh after stream end failed: %v", err)
	}
}

func (a *Assembler) append(msg Message) {
	history := a.History()
	next := make([]Message, len(history), len(history)+1)
	copy(next, history)
	next = append(next, msg)
	a.store.Set(store.KeyHistory, next)
}
