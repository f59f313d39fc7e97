package socket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyonware/halcyon/internal/chat"
	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/store"
)

// State represents the connection state of a Session.
type State int

const (
	// StateNoConnection means no connection has been attempted yet.
	StateNoConnection State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the duplex connection is live.
	StateConnected
	// StateDisconnected means the last connection was torn down.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNoConnection:
		return "no-connection"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SocketError is an error from the socket layer.
type SocketError struct {
	Code    string
	Message string
	Details string
}

func (e *SocketError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Error codes used by the session.
const (
	CodeSocketUnavailable = "SOCKET_UNAVAILABLE"
	CodeConnectFailed     = "CONNECT_FAILED"
	CodeDisconnected      = "DISCONNECTED"
	CodeTimeout           = "TIMEOUT"
	CodeServerError       = "SERVER_ERROR"
)

// Config holds session configuration.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// DialTimeout bounds the initial dial.
	DialTimeout time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
	// PingInterval is the keepalive ping period.
	PingInterval time.Duration
	// PongWait is how long to wait for traffic before declaring the
	// connection dead. Must exceed PingInterval.
	PongWait time.Duration
	// RoundTripTimeout bounds request/acknowledgement exchanges.
	RoundTripTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:              url,
		DialTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     54 * time.Second,
		PongWait:         60 * time.Second,
		RoundTripTimeout: 10 * time.Second,
	}
}

type handlerFunc func(data json.RawMessage)

// Session owns at most one duplex connection to the assistant backend. The
// connection handle lives here and only derived state (connectivity,
// transcription flags, conversation mutations) is published to the store.
// Each physical connection gets the permanent handler set attached exactly
// once and a generation number; events read from a superseded generation
// are dropped, which is what isolates a reconnect from its predecessor.
type Session struct {
	cfg        *Config
	store      *store.Store
	log        *logger.Logger
	assembler  *chat.Assembler
	correlator *chat.Correlator

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	gen         uint64
	registered  bool
	attachCount int
	handlers    map[string]handlerFunc
	waiters     map[string][]*waiter

	writeMu sync.Mutex
}

// NewSession creates a session. It does not connect.
func NewSession(cfg *Config, st *store.Store, log *logger.Logger, assembler *chat.Assembler, correlator *chat.Correlator) *Session {
	if log == nil {
		log = logger.Global()
	}
	return &Session{
		cfg:        cfg,
		store:      st,
		log:        log.WithPrefix("socket"),
		assembler:  assembler,
		correlator: correlator,
		state:      StateNoConnection,
		waiters:    make(map[string][]*waiter),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Connect opens a new duplex connection. It is a no-op while a connection
// is already live or being dialed, so racing calls still produce exactly
// one physical connection with the handler set attached exactly once.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.gen++
	gen := s.gen
	s.registered = false
	s.attachPermanentHandlersLocked()
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		superseded := gen != s.gen
		if !superseded {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		if superseded {
			// A teardown or newer connect already moved on; this
			// failure must not touch live connectivity state.
			return &SocketError{Code: CodeDisconnected, Message: "connection superseded during dial"}
		}
		s.store.Set(store.KeyConnected, false)
		s.store.Set(store.KeyStatusMessage, "Connection failed")
		return &SocketError{Code: CodeConnectFailed, Message: "failed to connect", Details: err.Error()}
	}

	s.mu.Lock()
	if gen != s.gen {
		// A teardown or newer connect superseded this dial.
		s.mu.Unlock()
		conn.Close()
		return &SocketError{Code: CodeDisconnected, Message: "connection superseded during dial"}
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	s.store.Set(store.KeyConnected, true)
	s.store.Set(store.KeyStatusMessage, "")
	s.log.Info("connected to %s (conn %d)", s.cfg.URL, gen)

	go s.readLoop(conn, gen)
	go s.pingLoop(conn, gen)

	return nil
}

// Disconnect tears down the current connection. No automatic reconnect
// follows; the next Connect builds a fresh connection and re-registers the
// permanent handlers.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	gen := s.gen
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		s.writeMu.Unlock()
	}
	s.teardown(conn, gen, "client disconnect")
}

// Emit sends one named event. While not connected it surfaces a
// "not connected" status and returns a SocketError instead of queueing.
func (s *Session) Emit(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.store.Set(store.KeyStatusMessage, "Not connected")
		return &SocketError{Code: CodeSocketUnavailable, Message: "not connected", Details: event}
	}

	ev, err := NewEvent(event, payload)
	if err != nil {
		return &SocketError{Code: CodeServerError, Message: "failed to encode event", Details: err.Error()}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		return &SocketError{Code: CodeDisconnected, Message: "write failed", Details: err.Error()}
	}
	return nil
}

// SendChat marks the conversation as processing, appends the user message
// to the history and emits the send request. On emit failure the marker is
// cleared again and the failure lands inline in the conversation.
func (s *Session) SendChat(msg SendChatMessage) error {
	s.correlator.MarkProcessing(msg.ChatID)
	userMsg := chat.Message{Content: msg.Message, Timestamp: time.Now()}
	for _, id := range msg.AttachedFiles {
		userMsg.Attachments = append(userMsg.Attachments, chat.Attachment{ID: id, Kind: chat.KindFull})
	}
	for _, f := range msg.SessionFiles {
		userMsg.Attachments = append(userMsg.Attachments, chat.Attachment{
			Filename: f.Filename,
			Kind:     chat.KindSession,
			Mimetype: f.Mimetype,
		})
	}
	s.assembler.AppendUser(userMsg)

	if err := s.Emit(EventSendChatMessage, msg); err != nil {
		s.correlator.Resolve(msg.ChatID, "send_failed")
		s.assembler.AppendError("Failed to send message: " + err.Error())
		return err
	}
	return nil
}

// CancelGeneration requests cancellation of the in-flight generation for
// chatID. Stale attempts are dropped by the correlator. The stream keeps
// flowing until the server sends a terminal event.
func (s *Session) CancelGeneration(chatID string) error {
	return s.correlator.Cancel(chatID, s)
}

// StartTranscription begins a voice capture session and waits for the
// server's acknowledgement.
func (s *Session) StartTranscription(ctx context.Context, languageCode, audioFormat string) error {
	_, err := s.roundTrip(ctx, EventStartTranscription,
		StartTranscription{LanguageCode: languageCode, AudioFormat: audioFormat},
		EventTranscriptionStarted, EventTranscriptionError)
	return err
}

// StopTranscription ends the capture session and waits for the server's
// acknowledgement.
func (s *Session) StopTranscription(ctx context.Context) error {
	_, err := s.roundTrip(ctx, EventStopTranscription, struct{}{},
		EventTranscriptionStopAck, EventTranscriptionError)
	return err
}

// SendAudioChunk forwards captured audio bytes.
func (s *Session) SendAudioChunk(data []byte) error {
	return s.Emit(EventAudioChunk, AudioChunk{Data: base64.StdEncoding.EncodeToString(data)})
}

// attachPermanentHandlersLocked installs the fixed handler set for the
// current connection. Guarded by the registered flag so racing connects
// attach exactly once per physical connection. Each handler translates one
// event into store mutations; none of them performs socket I/O.
func (s *Session) attachPermanentHandlersLocked() {
	if s.registered {
		return
	}
	s.registered = true
	s.attachCount++
	s.handlers = map[string]handlerFunc{
		EventTranscriptUpdate:      s.onTranscriptUpdate,
		EventPromptImproved:        s.onPromptImproved,
		EventTaskStarted:           s.onTaskStarted,
		EventStatusUpdate:          s.onStatusUpdate,
		EventChatResponse:          s.onChatResponse,
		EventStreamChunk:           s.onStreamChunk,
		EventStreamEnd:             s.onStreamEnd,
		EventDeepResearchResult:    s.onDeepResearchResult,
		EventTaskError:             s.onTaskError,
		EventGenerationCancelled:   s.onGenerationCancelled,
		EventCancelRequestReceived: s.onCancelRequestReceived,
		EventTranscriptionStarted:  s.onTranscriptionStarted,
		EventTranscriptionError:    s.onTranscriptionError,
		EventTranscriptionComplete: s.onTranscriptionComplete,
		EventTranscriptionStopAck:  s.onTranscriptionStopAck,
	}
}

func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	defer s.teardown(conn, gen, "connection closed")

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("read failed on conn %d: %v", gen, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		s.dispatch(gen, ev)
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		live := gen == s.gen && s.state == StateConnected
		s.mu.Unlock()
		if !live {
			return
		}
		s.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// dispatch routes one inbound event. Events carrying a stale generation
// come from a connection that has already been discarded and must not
// mutate any state.
func (s *Session) dispatch(gen uint64, ev Event) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("dropping %s from stale conn %d", ev.Type, gen)
		return
	}
	handler := s.handlers[ev.Type]
	settled := s.takeWaitersLocked(ev.Type)
	s.mu.Unlock()

	if handler != nil {
		handler(ev.Data)
	} else if len(settled) == 0 {
		s.log.Debug("unhandled event %s", ev.Type)
	}
	for _, w := range settled {
		w.deliver(ev)
	}
}

// teardown cleans up after a connection ends, whether by error, close or
// explicit disconnect. It only acts if conn is still the current
// generation; teardown of an already-replaced connection is a no-op.
func (s *Session) teardown(conn *websocket.Conn, gen uint64, reason string) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateDisconnected || s.state == StateNoConnection {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	s.state = StateDisconnected
	s.conn = nil
	s.registered = false
	s.handlers = nil
	// Bump the generation so a dial still in flight and reads still
	// draining from this connection both land on the floor.
	s.gen++
	orphaned := s.drainWaitersLocked()
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	s.log.Info("disconnected (conn %d): %s", gen, reason)
	s.store.Set(store.KeyConnected, false)
	s.store.Set(store.KeyRecording, false)
	s.store.Set(store.KeyTranscriptInterim, "")

	for _, w := range orphaned {
		w.fail(&SocketError{Code: CodeDisconnected, Message: reason})
	}
}

// attachments returns the handler-attachment count, used to verify the
// exactly-once registration contract.
func (s *Session) attachments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachCount
}
