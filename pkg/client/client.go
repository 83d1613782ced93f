// Package client is a Go client for the messaging gateway: the websocket
// push channel plus the REST backfill and unread API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/caseportal/messaging/pkg/unread"
)

// Message is a persisted case message.
type Message struct {
	ID          int64     `json:"id"`
	CaseID      string    `json:"case_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`
}

// Page is one page of case history, oldest first.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor int64     `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// UnreadCount is the response of the unread poll.
type UnreadCount struct {
	UserID     string           `json:"user_id"`
	Count      int64            `json:"count"`
	Watermarks map[string]int64 `json:"watermarks"`
}

// Snapshot converts the poll result for an unread.Synchronizer.
func (u *UnreadCount) Snapshot() unread.Snapshot {
	return unread.Snapshot{Count: u.Count, Watermarks: u.Watermarks}
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api: %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Config configures a Client.
type Config struct {
	// BaseURL is the gateway root, e.g. http://localhost:8090.
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client talks to one gateway as one user.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: base, token: cfg.Token, http: hc}, nil
}

// ListOptions pages case history. Zero values ask for the newest page.
type ListOptions struct {
	Cursor  int64
	Limit   int
	Forward bool
}

// Messages reads a page of a case's history.
func (c *Client) Messages(ctx context.Context, caseID string, opts ListOptions) (*Page, error) {
	q := url.Values{}
	if opts.Cursor > 0 {
		q.Set("cursor", strconv.FormatInt(opts.Cursor, 10))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Forward {
		q.Set("direction", "forward")
	}

	var page Page
	path := "/api/v1/cases/" + url.PathEscape(caseID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Unread polls the authoritative unread count.
func (c *Client) Unread(ctx context.Context) (*UnreadCount, error) {
	var out UnreadCount
	if err := c.do(ctx, http.MethodGet, "/api/v1/unread", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks the caller's messages in a case read up to upToID, or all
// of them when upToID is 0. It returns the number updated.
func (c *Client) MarkRead(ctx context.Context, caseID string, upToID int64) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	body := map[string]int64{"up_to_id": upToID}
	path := "/api/v1/cases/" + url.PathEscape(caseID) + "/read"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// Transcript is a stored export of a case's history.
type Transcript struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	CaseID    string    `json:"case_id"`
	Messages  int       `json:"messages"`
	LastID    int64     `json:"last_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptObject is one entry of a case's transcript listing.
type TranscriptObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Name is the last path segment of the key, as accepted by
// DownloadTranscript.
func (o TranscriptObject) Name() string {
	return path.Base(o.Key)
}

func (c *Client) ExportTranscript(ctx context.Context, caseID string) (*Transcript, error) {
	var out Transcript
	p := "/api/v1/cases/" + url.PathEscape(caseID) + "/transcripts"
	if err := c.do(ctx, http.MethodPost, p, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transcripts lists earlier exports, newest first.
func (c *Client) Transcripts(ctx context.Context, caseID string) ([]TranscriptObject, error) {
	var out []TranscriptObject
	p := "/api/v1/cases/" + url.PathEscape(caseID) + "/transcripts"
	if err := c.do(ctx, http.MethodGet, p, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadTranscript returns the JSON Lines body of a stored transcript.
func (c *Client) DownloadTranscript(ctx context.Context, caseID, name string) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + "/api/v1/cases/" + url.PathEscape(caseID) + "/transcripts/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope
		if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out interface{}) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// IsForbidden reports whether err is a 403 from the API.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}
