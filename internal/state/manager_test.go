package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonware/halcyon/internal/api"
	"github.com/halcyonware/halcyon/internal/chat"
	"github.com/halcyonware/halcyon/internal/store"
)

type scriptedBackend struct {
	chats     []api.ChatSummary
	notes     []api.NoteSummary
	histories map[string][]chat.Message

	createdChats   []string
	modelUpdates   []string
	modelUpdateErr error
}

func (b *scriptedBackend) ListChats(context.Context) ([]api.ChatSummary, error) {
	return b.chats, nil
}

func (b *scriptedBackend) CreateChat(_ context.Context, title string) (string, error) {
	id := "created-" + title
	b.createdChats = append(b.createdChats, id)
	b.chats = append(b.chats, api.ChatSummary{ID: id, Title: title})
	return id, nil
}

func (b *scriptedBackend) GetChatHistory(_ context.Context, chatID string) ([]chat.Message, error) {
	return b.histories[chatID], nil
}

func (b *scriptedBackend) ListNotes(context.Context) ([]api.NoteSummary, error) {
	return b.notes, nil
}

func (b *scriptedBackend) UpdateModel(_ context.Context, model string) error {
	if b.modelUpdateErr != nil {
		return b.modelUpdateErr
	}
	b.modelUpdates = append(b.modelUpdates, model)
	return nil
}

type fixture struct {
	manager   *Manager
	db        *Database
	backend   *scriptedBackend
	store     *store.Store
	assembler *chat.Assembler
}

func newFixture(t *testing.T, backend *scriptedBackend) *fixture {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New()
	assembler := chat.NewAssembler(st, nil, nil)
	return &fixture{
		manager:   NewManager(db, backend, st, assembler, nil),
		db:        db,
		backend:   backend,
		store:     st,
		assembler: assembler,
	}
}

func TestRestoreKeepsValidPersistedChat(t *testing.T) {
	backend := &scriptedBackend{
		chats: []api.ChatSummary{
			{ID: "old", UpdatedAt: time.Now().Add(-time.Hour)},
			{ID: "recent", UpdatedAt: time.Now()},
		},
		histories: map[string][]chat.Message{
			"old": {{Role: chat.RoleUser, Content: "hello"}},
		},
	}
	f := newFixture(t, backend)
	require.NoError(t, f.db.SetActiveChat("old"))

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "old", f.store.GetString(store.KeyActiveChat))
	history := f.assembler.History()
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
	assert.True(t, history[0].Final, "restored entries must be settled")
}

func TestRestoreFallsBackToMostRecentChat(t *testing.T) {
	backend := &scriptedBackend{
		chats: []api.ChatSummary{
			{ID: "older", UpdatedAt: time.Now().Add(-time.Hour)},
			{ID: "newest", UpdatedAt: time.Now()},
		},
		histories: map[string][]chat.Message{},
	}
	f := newFixture(t, backend)
	require.NoError(t, f.db.SetActiveChat("deleted-elsewhere"))

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "newest", f.store.GetString(store.KeyActiveChat))
	persisted, err := f.db.ActiveChat()
	require.NoError(t, err)
	assert.Equal(t, "newest", persisted)
	assert.Empty(t, backend.createdChats)
}

func TestRestoreCreatesChatWhenAccountEmpty(t *testing.T) {
	backend := &scriptedBackend{histories: map[string][]chat.Message{}}
	f := newFixture(t, backend)

	require.NoError(t, f.manager.Restore(context.Background()))

	require.Len(t, backend.createdChats, 1)
	assert.Equal(t, backend.createdChats[0], f.store.GetString(store.KeyActiveChat))
}

func TestRestoreClearsStaleNote(t *testing.T) {
	backend := &scriptedBackend{
		chats:     []api.ChatSummary{{ID: "c1", UpdatedAt: time.Now()}},
		notes:     []api.NoteSummary{{ID: "kept"}},
		histories: map[string][]chat.Message{},
	}
	f := newFixture(t, backend)
	require.NoError(t, f.db.SetActiveNote("gone"))

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "", f.store.GetString(store.KeyActiveNote))
	persisted, err := f.db.ActiveNote()
	require.NoError(t, err)
	assert.Equal(t, "", persisted)
}

func TestRestorePublishesPersistedModel(t *testing.T) {
	backend := &scriptedBackend{
		chats:     []api.ChatSummary{{ID: "c1", UpdatedAt: time.Now()}},
		histories: map[string][]chat.Message{},
	}
	f := newFixture(t, backend)
	require.NoError(t, f.db.SetModel("sonnet-large"))

	require.NoError(t, f.manager.Restore(context.Background()))

	assert.Equal(t, "sonnet-large", f.store.GetString(store.KeyModel))
}

func TestSelectModelConfirmed(t *testing.T) {
	backend := &scriptedBackend{}
	f := newFixture(t, backend)

	require.NoError(t, f.manager.SelectModel(context.Background(), "opus-max"))

	assert.Equal(t, "opus-max", f.store.GetString(store.KeyModel))
	assert.Equal(t, []string{"opus-max"}, backend.modelUpdates)
	persisted, err := f.db.Model()
	require.NoError(t, err)
	assert.Equal(t, "opus-max", persisted)
}

func TestSelectModelRollsBackOnRejection(t *testing.T) {
	backend := &scriptedBackend{modelUpdateErr: errors.New("unknown model")}
	f := newFixture(t, backend)
	f.store.Set(store.KeyModel, "current")

	// The tentative value is visible to subscribers before confirmation.
	var observed []string
	f.store.Subscribe(store.KeyModel, func(value, _ any) {
		observed = append(observed, value.(string))
	})

	err := f.manager.SelectModel(context.Background(), "bogus")
	require.Error(t, err)

	assert.Equal(t, "current", f.store.GetString(store.KeyModel))
	assert.Equal(t, []string{"bogus", "current"}, observed)
	persisted, dbErr := f.db.Model()
	require.NoError(t, dbErr)
	assert.Equal(t, "", persisted, "rejected model must not be persisted")
}

func TestSelectChatReplacesHistory(t *testing.T) {
	backend := &scriptedBackend{
		histories: map[string][]chat.Message{
			"c2": {
				{Role: chat.RoleUser, Content: "earlier"},
				{Role: chat.RoleAssistant, Content: "reply"},
			},
		},
	}
	f := newFixture(t, backend)
	f.assembler.AppendUser(chat.Message{Content: "from previous chat"})

	require.NoError(t, f.manager.SelectChat(context.Background(), "c2"))

	history := f.assembler.History()
	require.Len(t, history, 2)
	assert.Equal(t, "earlier", history[0].Content)
	assert.Equal(t, "c2", f.store.GetString(store.KeyActiveChat))
}
