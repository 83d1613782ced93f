// Package transcript writes a case's full message history to object
// storage as JSON Lines, one message per line, oldest first.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
	"github.com/caseportal/messaging/pkg/log"
	"github.com/caseportal/messaging/pkg/storage"
)

const ContentType = "application/x-ndjson"

// Export describes one stored transcript.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	CaseID    string    `json:"case_id"`
	Messages  int       `json:"messages"`
	LastID    int64     `json:"last_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Exporter struct {
	store   store.MessageStore
	objects storage.Storage
	urlTTL  time.Duration
	now     func() time.Time
}

func NewExporter(st store.MessageStore, objects storage.Storage, urlTTL time.Duration) *Exporter {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Exporter{store: st, objects: objects, urlTTL: urlTTL, now: time.Now}
}

func Prefix(caseID string) string {
	return "transcripts/" + caseID + "/"
}

// Export snapshots the history of caseID up to its newest message.
// Messages appended while the export runs may or may not be included;
// LastID says where the snapshot ends.
func (e *Exporter) Export(ctx context.Context, caseID string) (*Export, error) {
	if !validCaseID(caseID) {
		return nil, domain.ErrBadRequest
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	var (
		cursor int64
		count  int
	)
	for {
		page, err := e.store.ListMessages(ctx, store.ListQuery{
			CaseID:    caseID,
			Cursor:    cursor,
			Limit:     store.MaxLimit,
			Direction: store.Forward,
		})
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		for i := range page.Messages {
			if err := enc.Encode(&page.Messages[i]); err != nil {
				return nil, fmt.Errorf("encode message: %w", err)
			}
			cursor = page.Messages[i].ID
			count++
		}
		if !page.HasMore || len(page.Messages) == 0 {
			break
		}
	}

	created := e.now().UTC()
	key := fmt.Sprintf("%s%s-%d.jsonl", Prefix(caseID), created.Format("20060102T150405Z"), cursor)
	if err := e.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), ContentType); err != nil {
		return nil, fmt.Errorf("store transcript: %w", err)
	}

	url, err := e.objects.URL(ctx, key, e.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("transcript url: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldCaseID, caseID).
		Str("key", key).
		Int("messages", count).
		Msg("transcript exported")

	return &Export{
		Key:       key,
		URL:       url,
		CaseID:    caseID,
		Messages:  count,
		LastID:    cursor,
		CreatedAt: created,
	}, nil
}

// List returns earlier exports of caseID, newest first.
func (e *Exporter) List(ctx context.Context, caseID string) ([]storage.ObjectInfo, error) {
	if !validCaseID(caseID) {
		return nil, domain.ErrBadRequest
	}
	objects, err := e.objects.List(ctx, Prefix(caseID))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(objects)-1; i < j; i, j = i+1, j-1 {
		objects[i], objects[j] = objects[j], objects[i]
	}
	return objects, nil
}

// Open streams the transcript called name from caseID's exports. The
// caller closes the reader.
func (e *Exporter) Open(ctx context.Context, caseID, name string) (io.ReadCloser, error) {
	if !validCaseID(caseID) || name == "" || strings.ContainsAny(name, "/\\") || name == ".." {
		return nil, storage.ErrNotFound
	}
	return e.objects.Get(ctx, Prefix(caseID)+name)
}

// IsNotFound reports whether err means the transcript does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func validCaseID(caseID string) bool {
	return caseID != "" && caseID != ".." && !strings.ContainsAny(caseID, "/\\")
}
