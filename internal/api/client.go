// Package api wraps the one-shot HTTP surface of the assistant backend. All
// expected failures come back as one of three classifications (NetworkError,
// ServerError, DecodeError); nothing is thrown past this boundary. The
// executor also owns the store-held busy flag and status line around each
// call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/halcyonware/halcyon/internal/logger"
	"github.com/halcyonware/halcyon/internal/store"
)

// Request describes one HTTP-style call declaratively.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Status is the status line shown while the call runs; empty keeps the
	// current one.
	Status string
}

// Client performs one-shot request/response calls against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	store   *store.Store
	log     *logger.Logger
}

// NewClient creates a request executor for baseURL, publishing busy/status
// state through st.
func NewClient(baseURL string, timeout time.Duration, st *store.Store, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   st,
		log:     log.WithPrefix("api"),
	}
}

// Do performs req and decodes a JSON success payload into out (out may be
// nil when the body does not matter). The busy flag is set to true before
// the call and back to false exactly once afterwards: a call that starts
// while another is already running leaves the flag alone, so nested reloads
// triggered by a top-level call cannot clear busy state early.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	wasLoading := c.store.GetBool(store.KeyBusy)
	if !wasLoading {
		c.store.Set(store.KeyBusy, true)
		if req.Status != "" {
			c.store.Set(store.KeyStatusMessage, req.Status)
		}
		defer c.store.Set(store.KeyBusy, false)
	}

	err := c.do(ctx, req, out)
	if err != nil {
		c.log.Warn("%s %s failed: %v", req.Method, req.Path, err)
		if !wasLoading {
			c.store.Set(store.KeyStatusMessage, err.Error())
		}
		return err
	}
	if !wasLoading && req.Status != "" {
		c.store.Set(store.KeyStatusMessage, "")
	}
	return nil
}

func (c *Client) do(ctx context.Context, req Request, out any) error {
	var body io.Reader
	contentType := ""
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return &NetworkError{Err: fmt.Errorf("encode request body: %w", err)}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.endpoint(req), body)
	if err != nil {
		return &NetworkError{Err: err}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	return c.decode(resp, out)
}

func (c *Client) endpoint(req Request) string {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func (c *Client) decode(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &errBody) == nil {
			msg = errBody.Error
			if msg == "" {
				msg = errBody.Message
			}
		}
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// UploadFile sends file bytes as a multipart form body and decodes the JSON
// response into out. Binary payloads never travel as JSON strings.
func (c *Client) UploadFile(ctx context.Context, path, fieldName, filename string, r io.Reader, out any) error {
	wasLoading := c.store.GetBool(store.KeyBusy)
	if !wasLoading {
		c.store.Set(store.KeyBusy, true)
		c.store.Set(store.KeyStatusMessage, "Uploading "+filename)
		defer c.store.Set(store.KeyBusy, false)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		return &NetworkError{Err: err}
	}
	if _, err := io.Copy(part, r); err != nil {
		return &NetworkError{Err: err}
	}
	if err := w.Close(); err != nil {
		return &NetworkError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(Request{Path: path}), &buf)
	if err != nil {
		return &NetworkError{Err: err}
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.decode(resp, out); err != nil {
		if !wasLoading {
			c.store.Set(store.KeyStatusMessage, err.Error())
		}
		return err
	}
	if !wasLoading {
		c.store.Set(store.KeyStatusMessage, "")
	}
	return nil
}
