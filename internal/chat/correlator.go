package chat

import (
	"sync"

	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/store"
)

// Emitter sends one named event over the socket session. Declared here so
// the correlator can request a cancellation without depending on the socket
// package.
type Emitter interface {
	Emit(event string, payload any) error
}

// CancelGeneration is the outbound cancellation request payload.
type CancelGeneration struct {
	ChatID string `json:"chat_id"`
}

// Correlator tracks the single conversation currently awaiting a server
// response and reconciles that marker against terminal events. The marker is
// cleared exactly once per request, no matter which terminal event arrives
// first; events correlated to a superseded request are logged and dropped.
type Correlator struct {
	mu      sync.Mutex
	current string

	store *store.Store
	log   *logger.Logger
}

// NewCorrelator creates a correlator publishing its marker through st.
func NewCorrelator(st *store.Store, log *logger.Logger) *Correlator {
	if log == nil {
		log = logger.Global()
	}
	return &Correlator{store: st, log: log.WithPrefix("correlator")}
}

// Current returns the id of the conversation awaiting a response, or "".
func (c *Correlator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// MarkProcessing records chatID as the in-flight conversation. A second call
// before the first resolves overwrites the marker: the client allows a
// single in-flight generation, and the UI refuses new sends while the marker
// is set for the active conversation.
func (c *Correlator) MarkProcessing(chatID string) {
	c.mu.Lock()
	if c.current != "" && c.current != chatID {
		c.log.Warn("overwriting processing marker %s with %s", c.current, chatID)
	}
	c.current = chatID
	c.mu.Unlock()

	c.store.Set(store.KeyProcessingChat, chatID)
}

// Cancel emits a cancellation request for chatID if it is the conversation
// currently awaiting a response. A stale cancel attempt is a logged no-op.
// Cancellation is advisory: the marker stays set until the server sends a
// terminal event, and fragments keep being accepted until then.
func (c *Correlator) Cancel(chatID string, emitter Emitter) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == "" || current != chatID {
		c.log.Warn("ignoring cancel for %s, current marker is %q", chatID, current)
		return nil
	}
	return emitter.Emit("cancel_generation", CancelGeneration{ChatID: chatID})
}

// Resolve clears the marker in response to a terminal event for chatID and
// reports whether it did. An event whose id does not match the marker is
// logged and ignored, so a terminal event of a superseded request cannot
// clobber the marker of a newer one. An empty chatID matches whatever is
// current, for terminal events the server does not scope to a conversation.
func (c *Correlator) Resolve(chatID, event string) bool {
	c.mu.Lock()
	if c.current == "" {
		c.mu.Unlock()
		c.log.Debug("terminal event %s with no marker set", event)
		return false
	}
	if chatID != "" && chatID != c.current {
		current := c.current
		c.mu.Unlock()
		c.log.Warn("stale %s for %s ignored, current marker is %s", event, chatID, current)
		return false
	}
	c.current = ""
	c.mu.Unlock()

	c.store.Set(store.KeyProcessingChat, "")
	return true
}
