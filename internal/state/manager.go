package state

import (
	"context"
	"sort"

	"github.com/halcyonware/halcyon/internal/api"
	"github.com/halcyonware/halcyon/internal/chat"
	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/store"
)

// Backend is the slice of the request executor the manager needs. Declared
// here so tests can substitute a scripted backend.
type Backend interface {
	ListChats(ctx context.Context) ([]api.ChatSummary, error)
	CreateChat(ctx context.Context, title string) (string, error)
	GetChatHistory(ctx context.Context, chatID string) ([]chat.Message, error)
	ListNotes(ctx context.Context) ([]api.NoteSummary, error)
	UpdateModel(ctx context.Context, model string) error
}

// Manager reconciles persisted session identifiers with what the backend
// actually has. Identifiers can go stale between runs (a chat deleted from
// another device), so every restore revalidates before publishing.
type Manager struct {
	db        *Database
	backend   Backend
	store     *store.Store
	assembler *chat.Assembler
	log       *logger.Logger
}

// NewManager creates a manager.
func NewManager(db *Database, backend Backend, st *store.Store, assembler *chat.Assembler, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		db:        db,
		backend:   backend,
		store:     st,
		assembler: assembler,
		log:       log.WithPrefix("state"),
	}
}

// Restore revalidates the persisted session against the backend and
// publishes the result. A persisted chat id that no longer exists falls
// back to the most recently updated chat, and an empty account gets a
// fresh conversation.
func (m *Manager) Restore(ctx context.Context) error {
	chats, err := m.backend.ListChats(ctx)
	if err != nil {
		return err
	}

	chatID, err := m.db.ActiveChat()
	if err != nil {
		return err
	}
	if chatID != "" && !containsChat(chats, chatID) {
		m.log.Info("persisted chat %s no longer exists", chatID)
		chatID = ""
	}
	if chatID == "" {
		chatID = mostRecentChat(chats)
	}
	if chatID == "" {
		chatID, err = m.backend.CreateChat(ctx, "New chat")
		if err != nil {
			return err
		}
	}
	if err := m.SelectChat(ctx, chatID); err != nil {
		return err
	}

	if err := m.restoreNote(ctx); err != nil {
		return err
	}

	model, err := m.db.Model()
	if err != nil {
		return err
	}
	if model != "" {
		m.store.Set(store.KeyModel, model)
	}
	return nil
}

func (m *Manager) restoreNote(ctx context.Context) error {
	notes, err := m.backend.ListNotes(ctx)
	if err != nil {
		return err
	}

	noteID, err := m.db.ActiveNote()
	if err != nil {
		return err
	}
	if noteID != "" && !containsNote(notes, noteID) {
		m.log.Info("persisted note %s no longer exists", noteID)
		noteID = ""
		if err := m.db.SetActiveNote(""); err != nil {
			return err
		}
	}
	m.store.Set(store.KeyActiveNote, noteID)
	return nil
}

// SelectChat switches the active conversation: its history replaces the
// current one wholesale and the selection is persisted.
func (m *Manager) SelectChat(ctx context.Context, chatID string) error {
	history, err := m.backend.GetChatHistory(ctx, chatID)
	if err != nil {
		return err
	}
	m.assembler.ReplaceHistory(history)
	m.store.Set(store.KeyActiveChat, chatID)
	return m.db.SetActiveChat(chatID)
}

// SelectNote switches the active note and persists the selection.
func (m *Manager) SelectNote(noteID string) error {
	m.store.Set(store.KeyActiveNote, noteID)
	return m.db.SetActiveNote(noteID)
}

// SelectModel applies a model change optimistically: the new value is
// published immediately so the UI reflects it, then confirmed against the
// backend. A rejected update rolls the published value back.
func (m *Manager) SelectModel(ctx context.Context, model string) error {
	previous := m.store.GetString(store.KeyModel)
	m.store.Set(store.KeyModel, model)

	if err := m.backend.UpdateModel(ctx, model); err != nil {
		m.store.Set(store.KeyModel, previous)
		m.log.Warn("model update to %s rejected: %v", model, err)
		return err
	}
	return m.db.SetModel(model)
}

func containsChat(chats []api.ChatSummary, id string) bool {
	for _, c := range chats {
		if c.ID == id {
			return true
		}
	}
	return false
}

func containsNote(notes []api.NoteSummary, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func mostRecentChat(chats []api.ChatSummary) string {
	if len(chats) == 0 {
		return ""
	}
	sorted := make([]api.ChatSummary, len(chats))
	copy(sorted, chats)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	return sorted[0].ID
}
