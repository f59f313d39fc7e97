// Package chat holds the conversation data model and the two components
// that reconcile it against socket events: the streaming assembler and the
// cancellation correlator.
package chat

import (
	"fmt"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// AttachmentKind is the closed set of attachment variants.
type AttachmentKind string

const (
	// KindFull is a fully uploaded file the server has stored.
	KindFull AttachmentKind = "full"
	// KindSummary is a server-side summary of an uploaded file.
	KindSummary AttachmentKind = "summary"
	// KindSession is a session-scoped file sent inline with a message.
	KindSession AttachmentKind = "session"
	// KindPending is a file still being uploaded.
	KindPending AttachmentKind = "pending"
)

// Valid reports whether k is one of the known attachment kinds.
func (k AttachmentKind) Valid() bool {
	switch k {
	case KindFull, KindSummary, KindSession, KindPending:
		return true
	}
	return false
}

// ParseAttachmentKind converts a wire tag into an AttachmentKind.
func ParseAttachmentKind(s string) (AttachmentKind, error) {
	k := AttachmentKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown attachment kind %q", s)
	}
	return k, nil
}

// Attachment describes a file referenced by a message.
type Attachment struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Kind     AttachmentKind `json:"kind"`
	Mimetype string         `json:"mimetype,omitempty"`
}

// Message is one entry of the conversation history. Content grows while the
// message is the streaming target; once a terminal event is processed the
// message is never touched again.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Error       bool         `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp,omitempty"`

	// Final marks a message frozen by a terminal event. Client-local
	// bookkeeping, not part of the wire shape.
	Final bool `json:"-"`
}

// streamTarget reports whether m may still receive streamed fragments.
// A user message, an error-flagged assistant message, a frozen message and
// anything that is not an assistant message are all closed to appends; this
// boundary keeps a late full reply from gluing itself onto a finished
// message of a previous turn.
func (m Message) streamTarget() bool {
	return m.Role == RoleAssistant && !m.Error && !m.Final
}
