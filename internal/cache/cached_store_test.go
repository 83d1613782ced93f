package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/store"
)

type countingStore struct {
	mu      sync.Mutex
	msgs    []domain.Message
	lists   int
	unreads int
}

func (s *countingStore) AppendMessage(_ context.Context, caseID, senderID, recipientID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.Message{
		ID:          int64(len(s.msgs) + 1),
		CaseID:      caseID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *countingStore) ListMessages(_ context.Context, q store.ListQuery) (*domain.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	page := &domain.MessagePage{}
	for _, m := range s.msgs {
		if m.CaseID == q.CaseID {
			page.Messages = append(page.Messages, m)
		}
	}
	return page, nil
}

func (s *countingStore) UnreadSnapshot(_ context.Context, userID string) (*domain.UnreadSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreads++
	snap := &domain.UnreadSnapshot{UserID: userID, Watermarks: map[string]int64{}}
	for _, m := range s.msgs {
		if m.RecipientID != userID {
			continue
		}
		if !m.Read {
			snap.Count++
		}
		if m.ID > snap.Watermarks[m.CaseID] {
			snap.Watermarks[m.CaseID] = m.ID
		}
	}
	return snap, nil
}

func (s *countingStore) MarkRead(_ context.Context, caseID, userID string, upToID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.CaseID == caseID && m.RecipientID == userID && !m.Read && (upToID <= 0 || m.ID <= upToID) {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func newTestCachedStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &countingStore{}
	return NewCachedStore(backing, NewRedisMessageCache(client, "test"), time.Minute, time.Minute), backing
}

func TestCachedStoreServesOlderPagesFromCache(t *testing.T) {
	s, backing := newTestCachedStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)

	q := store.ListQuery{CaseID: "42", Cursor: 5, Limit: 10, Direction: store.Backward}
	first, err := s.ListMessages(ctx, q)
	require.NoError(t, err)
	second, err := s.ListMessages(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.lists)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, first.Messages[0].Content, second.Messages[0].Content)
}

func TestCachedStoreNewestPageBypassesCache(t *testing.T) {
	s, backing := newTestCachedStore(t)
	ctx := context.Background()

	q := store.ListQuery{CaseID: "42", Limit: 10, Direction: store.Backward}
	_, err := s.ListMessages(ctx, q)
	require.NoError(t, err)
	_, err = s.ListMessages(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, 2, backing.lists)
}

func TestCachedStoreAppendInvalidatesCasePages(t *testing.T) {
	s, backing := newTestCachedStore(t)
	ctx := context.Background()

	q := store.ListQuery{CaseID: "42", Limit: 10, Direction: store.Forward}
	page, err := s.ListMessages(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	_, err = s.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)

	page, err = s.ListMessages(ctx, q)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, 2, backing.lists)
}

func TestCachedStoreUnreadSnapshot(t *testing.T) {
	s, backing := newTestCachedStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)

	snap, err := s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Count)
	assert.Equal(t, int64(1), snap.Watermarks["42"])

	_, err = s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.unreads)

	_, err = s.AppendMessage(ctx, "42", "1", "2", "Again")
	require.NoError(t, err)
	snap, err = s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Count)
	assert.Equal(t, 2, backing.unreads)

	n, err := s.MarkRead(ctx, "42", "2", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	snap, err = s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Count)
	assert.Equal(t, 3, backing.unreads)
}

func TestCachedStoreSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	backing := &countingStore{}
	s := NewCachedStore(backing, NewRedisMessageCache(client, "test"), time.Minute, time.Minute)
	ctx := context.Background()

	mr.Close()

	msg, err := s.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	page, err := s.ListMessages(ctx, store.ListQuery{CaseID: "42", Cursor: 9, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	snap, err := s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Count)
}

// stallingStore holds the first UnreadSnapshot load open after it has read
// the store, until resume is closed.
type stallingStore struct {
	*countingStore
	once   sync.Once
	loaded chan struct{}
	resume chan struct{}
}

func (s *stallingStore) UnreadSnapshot(ctx context.Context, userID string) (*domain.UnreadSnapshot, error) {
	snap, err := s.countingStore.UnreadSnapshot(ctx, userID)
	s.once.Do(func() {
		close(s.loaded)
		<-s.resume
	})
	return snap, err
}

func TestCachedStoreMarkReadDuringUnreadLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &stallingStore{
		countingStore: &countingStore{},
		loaded:        make(chan struct{}),
		resume:        make(chan struct{}),
	}
	s := NewCachedStore(backing, NewRedisMessageCache(client, "test"), time.Minute, time.Minute)
	ctx := context.Background()

	_, err := backing.countingStore.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)

	done := make(chan *domain.UnreadSnapshot, 1)
	go func() {
		snap, err := s.UnreadSnapshot(ctx, "2")
		assert.NoError(t, err)
		done <- snap
	}()

	<-backing.loaded
	n, err := s.MarkRead(ctx, "42", "2", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	close(backing.resume)

	inflight := <-done
	require.NotNil(t, inflight)
	assert.Equal(t, int64(1), inflight.Count)

	snap, err := s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Count)

	snap, err = s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Count)
	assert.Equal(t, 2, backing.unreads)
}
