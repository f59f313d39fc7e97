package socket

import (
	"context"
	"encoding/json"

	"github.com/halcyonware/halcyon/internal/store"
)

// Permanent handlers. Each translates one inbound event into store
// mutations through the assembler, the correlator, or direct sets. The one
// exception to "no I/O" is the chat-list refresh after a terminal event,
// which goes through the request executor, not the socket.

func (s *Session) onTranscriptUpdate(data json.RawMessage) {
	var p TranscriptUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad transcript_update payload: %v", err)
		return
	}
	if !p.IsFinal {
		// Interim fragments only replace the scratch buffer.
		s.store.Set(store.KeyTranscriptInterim, p.Transcript)
		return
	}
	// Final fragments accumulate and clear the scratch buffer.
	s.store.Set(store.KeyTranscript, s.store.GetString(store.KeyTranscript)+p.Transcript)
	s.store.Set(store.KeyTranscriptInterim, "")
}

func (s *Session) onPromptImproved(data json.RawMessage) {
	var p PromptImproved
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad prompt_improved payload: %v", err)
		return
	}
	s.store.Set(store.KeyImprovedPrompt, p)
}

func (s *Session) onTaskStarted(data json.RawMessage) {
	var p TaskStarted
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.store.Set(store.KeyStatusMessage, p.Message)
}

func (s *Session) onStatusUpdate(data json.RawMessage) {
	var p StatusUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.store.Set(store.KeyStatusMessage, p.Message)
}

func (s *Session) onChatResponse(data json.RawMessage) {
	var p ChatResponse
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad chat_response payload: %v", err)
		return
	}
	chatID := s.terminalChatID(p.ChatID)
	if !s.correlator.Resolve(p.ChatID, EventChatResponse) {
		// Reply of a superseded request; it must not land in the
		// current conversation's history.
		return
	}
	s.assembler.ApplyFinal(p.Reply, p.Attachments)
	s.store.Set(store.KeyStatusMessage, "")
	s.assembler.FinishStream(context.Background(), chatID)
}

func (s *Session) onStreamChunk(data json.RawMessage) {
	var p StreamChunk
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad stream_chunk payload: %v", err)
		return
	}
	s.assembler.ApplyFragment(p.Chunk, p.Attachments)
}

func (s *Session) onStreamEnd(data json.RawMessage) {
	var p StreamEnd
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad stream_end payload: %v", err)
		return
	}
	chatID := s.terminalChatID(p.ChatID)
	if s.correlator.Resolve(p.ChatID, EventStreamEnd) {
		s.store.Set(store.KeyStatusMessage, "")
		s.assembler.FinishStream(context.Background(), chatID)
	}
}

func (s *Session) onDeepResearchResult(data json.RawMessage) {
	var p DeepResearchResult
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("bad deep_research_result payload: %v", err)
		return
	}
	chatID := s.terminalChatID(p.ChatID)
	if !s.correlator.Resolve(p.ChatID, EventDeepResearchResult) {
		return
	}
	s.assembler.ApplyFinal(p.Report, nil)
	s.store.Set(store.KeyStatusMessage, "")
	s.assembler.FinishStream(context.Background(), chatID)
}

func (s *Session) onTaskError(data json.RawMessage) {
	var p TaskError
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if !s.correlator.Resolve(p.ChatID, EventTaskError) {
		// Stale failure of a superseded request; logged by the
		// correlator, nothing to surface.
		return
	}
	s.assembler.AppendError(p.Error)
	s.store.Set(store.KeyStatusMessage, p.Error)
}

func (s *Session) onGenerationCancelled(data json.RawMessage) {
	var p GenerationCancelled
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if s.correlator.Resolve(p.ChatID, EventGenerationCancelled) {
		s.assembler.FreezeLast()
		s.store.Set(store.KeyStatusMessage, p.Message)
	}
}

func (s *Session) onCancelRequestReceived(data json.RawMessage) {
	var p CancelRequestReceived
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.store.Set(store.KeyStatusMessage, p.Message)
}

func (s *Session) onTranscriptionStarted(json.RawMessage) {
	s.store.Set(store.KeyRecording, true)
}

func (s *Session) onTranscriptionError(data json.RawMessage) {
	var p TranscriptionError
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.store.Set(store.KeyRecording, false)
	s.store.Set(store.KeyStatusMessage, p.Error)
}

func (s *Session) onTranscriptionComplete(data json.RawMessage) {
	var p TranscriptionComplete
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.store.Set(store.KeyStatusMessage, p.Message)
}

func (s *Session) onTranscriptionStopAck(json.RawMessage) {
	s.store.Set(store.KeyRecording, false)
}

// terminalChatID picks the conversation id a terminal event belongs to:
// the payload's id when the server scoped it, otherwise the current marker.
func (s *Session) terminalChatID(payloadID string) string {
	if payloadID != "" {
		return payloadID
	}
	return s.correlator.Current()
}
