package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonware/halcyon/internal/store"
)

// newBackend spins up a fake backend with the routes the executor calls.
func newBackend(t *testing.T) (*httptest.Server, *httprouter.Router) {
	t.Helper()
	router := httprouter.New()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, router
}

func newTestClient(t *testing.T, baseURL string) (*Client, *store.Store) {
	t.Helper()
	st := store.New()
	return NewClient(baseURL, 5*time.Second, st, nil), st
}

func TestDoDecodesSuccessPayload(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/chats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		json.NewEncoder(w).Encode([]ChatSummary{{ID: "c1", Title: "first"}})
	})

	c, st := newTestClient(t, srv.URL)
	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)

	published, _ := st.Get(store.KeyChats).([]ChatSummary)
	require.Len(t, published, 1)
}

func TestDeleteChat(t *testing.T) {
	srv, router := newBackend(t)
	deleted := ""
	router.DELETE("/api/chats/:id", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		deleted = p.ByName("id")
		w.WriteHeader(http.StatusNoContent)
	})

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.DeleteChat(context.Background(), "c1"))
	assert.Equal(t, "c1", deleted)
}

func TestDoClassifiesServerError(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/chats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"no access"}`)
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.ListChats(context.Background())

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusForbidden, serverErr.Status)
	assert.Equal(t, "no access", serverErr.Message)
}

func TestDoClassifiesDecodeError(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/chats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		io.WriteString(w, `{not json`)
	})

	c, _ := newTestClient(t, srv.URL)
	_, err := c.ListChats(context.Background())

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDoClassifiesNetworkError(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:1") // nothing listens here

	_, err := c.ListChats(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.NotNil(t, errors.Unwrap(netErr))
}

func TestBusyFlagClearedOnFailure(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/chats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c, st := newTestClient(t, srv.URL)

	var busyDuringCall bool
	st.Subscribe(store.KeyBusy, func(value, previous any) {
		if value == true {
			busyDuringCall = true
		}
	})

	_, err := c.ListChats(context.Background())
	require.Error(t, err)

	assert.True(t, busyDuringCall, "busy flag was never raised")
	assert.False(t, st.GetBool(store.KeyBusy), "busy flag must clear even on failure")
}

func TestNestedCallDoesNotClearBusyEarly(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/notes", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		io.WriteString(w, `[]`)
	})
	c, st := newTestClient(t, srv.URL)

	var transitions []bool
	st.Subscribe(store.KeyBusy, func(value, previous any) {
		transitions = append(transitions, value.(bool))
	})

	// A top-level call that reloads notes mid-flight: the inner call sees
	// the flag already raised and leaves it alone.
	st.Set(store.KeyBusy, true)
	_, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	assert.True(t, st.GetBool(store.KeyBusy), "nested call cleared the busy flag")
	st.Set(store.KeyBusy, false)

	assert.Equal(t, []bool{true, false}, transitions, "busy must toggle exactly once")
}

func TestStatusMessagePublished(t *testing.T) {
	srv, router := newBackend(t)
	router.GET("/api/chats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		io.WriteString(w, `[]`)
	})
	c, st := newTestClient(t, srv.URL)

	var statuses []string
	st.Subscribe(store.KeyStatusMessage, func(value, previous any) {
		statuses = append(statuses, value.(string))
	})

	_, err := c.ListChats(context.Background())
	require.NoError(t, err)

	require.Len(t, statuses, 2)
	assert.Equal(t, "Loading chats", statuses[0])
	assert.Equal(t, "", statuses[1])
}

func TestUploadFileMultipart(t *testing.T) {
	srv, router := newBackend(t)
	var gotFilename string
	var gotBytes []byte
	router.POST("/api/files", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotBytes, _ = io.ReadAll(file)
		json.NewEncoder(w).Encode(map[string]string{"id": "f1"})
	})

	c, _ := newTestClient(t, srv.URL)

	var out struct {
		ID string `json:"id"`
	}
	err := c.UploadFile(context.Background(), "/api/files", "file", "notes.txt",
		bytes.NewReader([]byte("file body")), &out)
	require.NoError(t, err)
	assert.Equal(t, "f1", out.ID)
	assert.Equal(t, "notes.txt", gotFilename)
	assert.Equal(t, []byte("file body"), gotBytes)
}

func TestSessionFileStagerDedupes(t *testing.T) {
	s := NewSessionFileStager()

	first := s.Stage("a.txt", "text/plain", []byte("same bytes"))
	second := s.Stage("b.txt", "text/plain", []byte("same bytes"))
	third := s.Stage("a.txt", "text/plain", []byte("other bytes"))

	assert.Equal(t, first, second, "identical payloads must stage once")
	assert.NotEqual(t, first.Digest, third.Digest)
	assert.NotEmpty(t, first.Data)
}
