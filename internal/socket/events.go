package socket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonware/halcyon/internal/api"
	"github.com/halcyonware/halcyon/internal/chat"
)

// Outbound event names.
const (
	EventSendChatMessage    = "send_chat_message"
	EventCancelGeneration   = "cancel_generation"
	EventStartTranscription = "start_transcription"
	EventAudioChunk         = "audio_chunk"
	EventStopTranscription  = "stop_transcription"
)

// Inbound event names.
const (
	EventTranscriptUpdate      = "transcript_update"
	EventPromptImproved        = "prompt_improved"
	EventTaskStarted           = "task_started"
	EventStatusUpdate          = "status_update"
	EventChatResponse          = "chat_response"
	EventStreamChunk           = "stream_chunk"
	EventStreamEnd             = "stream_end"
	EventDeepResearchResult    = "deep_research_result"
	EventTaskError             = "task_error"
	EventGenerationCancelled   = "generation_cancelled"
	EventCancelRequestReceived = "cancel_request_received"
	EventTranscriptionStarted  = "transcription_started"
	EventTranscriptionError    = "transcription_error"
	EventTranscriptionComplete = "transcription_complete"
	EventTranscriptionStopAck  = "transcription_stop_acknowledged"
)

// Event is the wire envelope for both directions.
type Event struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEvent wraps a payload into an envelope with a fresh id.
func NewEvent(eventType string, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}
	return Event{
		Type:      eventType,
		ID:        uuid.New().String(),
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// SendChatMessage is the outbound payload that starts a generation.
type SendChatMessage struct {
	ChatID          string            `json:"chat_id"`
	Message         string            `json:"message"`
	AttachedFiles   []string          `json:"attached_files,omitempty"`
	SessionFiles    []api.SessionFile `json:"session_files,omitempty"`
	CalendarContext string            `json:"calendar_context,omitempty"`
	EnableWebSearch bool              `json:"enable_web_search"`
	Mode            string            `json:"mode,omitempty"`
	EnableStreaming bool              `json:"enable_streaming"`
	ImprovePrompt   bool              `json:"improve_prompt"`
}

// StartTranscription begins a voice capture session.
type StartTranscription struct {
	LanguageCode string `json:"languageCode"`
	AudioFormat  string `json:"audioFormat"`
}

// AudioChunk carries captured audio as a base64 text field.
type AudioChunk struct {
	Data string `json:"data"`
}

// TranscriptUpdate is an incremental transcription fragment.
type TranscriptUpdate struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// PromptImproved reports the rewritten prompt for an improve_prompt send.
type PromptImproved struct {
	Original string `json:"original"`
	Improved string `json:"improved"`
}

// TaskStarted announces that the server accepted a generation.
type TaskStarted struct {
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message"`
}

// StatusUpdate is a human-readable progress notice.
type StatusUpdate struct {
	Message string `json:"message"`
}

// ChatResponse delivers a complete (non-streamed) assistant reply.
type ChatResponse struct {
	ChatID      string            `json:"chat_id,omitempty"`
	Reply       string            `json:"reply"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
}

// StreamChunk is one fragment of a streamed reply.
type StreamChunk struct {
	ChatID      string            `json:"chat_id,omitempty"`
	Chunk       string            `json:"chunk"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
}

// StreamEnd terminates a streamed reply.
type StreamEnd struct {
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeepResearchResult delivers a finished research report.
type DeepResearchResult struct {
	ChatID string `json:"chat_id,omitempty"`
	Report string `json:"report"`
}

// TaskError reports a failed generation.
type TaskError struct {
	ChatID string `json:"chat_id,omitempty"`
	Error  string `json:"error"`
}

// GenerationCancelled confirms a cancellation took effect server-side.
type GenerationCancelled struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message,omitempty"`
}

// CancelRequestReceived acknowledges a cancel request was seen.
type CancelRequestReceived struct {
	Message string `json:"message,omitempty"`
}

// TranscriptionError reports a failed capture session.
type TranscriptionError struct {
	Error string `json:"error"`
}

// TranscriptionComplete reports a finished capture session.
type TranscriptionComplete struct {
	Message string `json:"message,omitempty"`
}
