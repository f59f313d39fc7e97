package store

// Well-known keys. Each key is written by exactly one owning component;
// everything else only reads or subscribes.
const (
	// KeyBusy is true while the request executor has a call in flight.
	KeyBusy = "api.busy"
	// KeyStatusMessage is the current human-readable status line.
	KeyStatusMessage = "status.message"

	// KeyConnected mirrors the socket session's connectivity as a bool.
	// The connection handle itself never enters the store.
	KeyConnected = "socket.connected"

	// KeyHistory holds the conversation history as a []chat.Message.
	KeyHistory = "chat.history"
	// KeyProcessingChat holds the id of the conversation awaiting a
	// terminal event, or "" when idle. Written only by the correlator.
	KeyProcessingChat = "chat.processing"
	// KeyImprovedPrompt holds the most recent prompt_improved payload.
	KeyImprovedPrompt = "chat.improvedPrompt"

	// KeyChats holds the chat list fetched from the server.
	KeyChats = "chats.list"
	// KeyNotes holds the note list fetched from the server.
	KeyNotes = "notes.list"

	// KeyRecording is true while a transcription session is active.
	KeyRecording = "voice.recording"
	// KeyTranscript accumulates final transcript fragments.
	KeyTranscript = "voice.transcript"
	// KeyTranscriptInterim holds the interim scratch buffer; it is
	// replaced by each interim fragment and cleared by final ones.
	KeyTranscriptInterim = "voice.transcriptInterim"

	// KeyActiveChat and KeyActiveNote mirror the persisted identifiers.
	KeyActiveChat = "session.activeChat"
	KeyActiveNote = "session.activeNote"
	// KeyModel is the selected model name (two-phase optimistic update).
	KeyModel = "session.model"

	// KeyConfig holds the most recently loaded *config.Config.
	KeyConfig = "config.current"
)
