package api

import (
	"context"
	"net/http"
	"time"

	"github.com/halcyonware/halcyon/internal/chat"
	"github.com/halcyonware/halcyon/internal/store"
)

// ChatSummary is one row of the chat list.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteSummary is one row of the note list.
type NoteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListChats fetches the chat list and publishes it under store.KeyChats.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var chats []ChatSummary
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/chats",
		Status: "Loading chats",
	}, &chats)
	if err != nil {
		return nil, err
	}
	c.store.Set(store.KeyChats, chats)
	return chats, nil
}

// CreateChat creates a new conversation and returns its id.
func (c *Client) CreateChat(ctx context.Context, title string) (string, error) {
	var created ChatSummary
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/chats",
		Body:   map[string]string{"title": title},
		Status: "Creating chat",
	}, &created)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// GetChatHistory fetches the full message history of one conversation.
func (c *Client) GetChatHistory(ctx context.Context, chatID string) ([]chat.Message, error) {
	var resp struct {
		Messages []chat.Message `json:"messages"`
	}
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/chats/" + chatID,
		Status: "Loading conversation",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteChat removes a conversation.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/chats/" + chatID,
		Status: "Deleting chat",
	}, nil)
}

// RefreshChat re-fetches the chat list so list metadata (last-updated
// timestamps) reflects a just-finished generation. Satisfies chat.Refresher.
func (c *Client) RefreshChat(ctx context.Context, chatID string) error {
	_, err := c.ListChats(ctx)
	return err
}

// ListNotes fetches the note list and publishes it under store.KeyNotes.
func (c *Client) ListNotes(ctx context.Context) ([]NoteSummary, error) {
	var notes []NoteSummary
	err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/notes",
		Status: "Loading notes",
	}, &notes)
	if err != nil {
		return nil, err
	}
	c.store.Set(store.KeyNotes, notes)
	return notes, nil
}

// UpdateModel persists the selected model server-side.
func (c *Client) UpdateModel(ctx context.Context, model string) error {
	return c.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/api/settings/model",
		Body:   map[string]string{"model": model},
	}, nil)
}
