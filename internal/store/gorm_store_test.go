package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/caseportal/messaging/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "messages.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, Models()...))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func TestAppendMessageAssignsIncreasingIDsPerCase(t *testing.T) {
	s := NewGormStore(newTestDB(t))
	ctx := context.Background()

	m1, err := s.AppendMessage(ctx, "42", "1", "2", "Hello")
	require.NoError(t, err)
	m2, err := s.AppendMessage(ctx, "42", "2", "1", "Reply")
	require.NoError(t, err)
	other, err := s.AppendMessage(ctx, "7", "1", "3", "Elsewhere")
	require.NoError(t, err)

	assert.Equal(t, int64(1), m1.ID)
	assert.Equal(t, int64(2), m2.ID)
	assert.Equal(t, int64(1), other.ID)
	assert.Equal(t, "42", m1.CaseID)
	assert.Equal(t, "1", m1.SenderID)
	assert.Equal(t, "2", m1.RecipientID)
	assert.False(t, m1.CreatedAt.IsZero())
}

func TestAppendMessageConcurrentWritersGetDistinctIDs(t *testing.T) {
	s := NewGormStore(newTestDB(t))
	ctx := context.Background()

	const writers = 16
	ids := make([]int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.AppendMessage(ctx, "42", "1", "2", fmt.Sprintf("msg %d", i))
			if assert.NoError(t, err) {
				ids[i] = m.ID
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestListMessagesPagesBackwardOldestFirst(t *testing.T) {
	s := NewGormStore(newTestDB(t))
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.AppendMessage(ctx, "42", "1", "2", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := s.ListMessages(ctx, ListQuery{CaseID: "42", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(4), page.Messages[0].ID)
	assert.Equal(t, int64(5), page.Messages[1].ID)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(4), page.NextCursor)

	page, err = s.ListMessages(ctx, ListQuery{CaseID: "42", Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(2), page.Messages[0].ID)
	assert.Equal(t, int64(3), page.Messages[1].ID)

	page, err = s.ListMessages(ctx, ListQuery{CaseID: "42", Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, int64(1), page.Messages[0].ID)
	assert.False(t, page.HasMore)
	assert.Zero(t, page.NextCursor)
}

func TestListMessagesPagesForward(t *testing.T) {
	s := NewGormStore(newTestDB(t))
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := s.AppendMessage(ctx, "42", "1", "2", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := s.ListMessages(ctx, ListQuery{CaseID: "42", Limit: 2, Direction: Forward})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(1), page.Messages[0].ID)
	assert.Equal(t, int64(2), page.NextCursor)

	page, err = s.ListMessages(ctx, ListQuery{CaseID: "42", Limit: 2, Direction: Forward, Cursor: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m3", page.Messages[0].Content)
	assert.False(t, page.HasMore)
}

func TestUnreadSnapshotAndMarkRead(t *testing.T) {
	s := NewGormStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "42", "1", "2", "a")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "42", "1", "2", "b")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "42", "2", "1", "to sender")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "7", "3", "2", "c")
	require.NoError(t, err)

	snap, err := s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, map[string]int64{"42": 2, "7": 1}, snap.Watermarks)

	n, err := s.MarkRead(ctx, "42", "2", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	snap, err = s.UnreadSnapshot(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Count)
	assert.Equal(t, int64(2), snap.Watermarks["42"], "watermarks ignore the read flag")

	n, err = s.MarkRead(ctx, "42", "2", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkRead(ctx, "42", "2", 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := s.ListMessages(ctx, ListQuery{CaseID: "42"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.True(t, page.Messages[0].Read)
	assert.False(t, page.Messages[2].Read, "messages addressed to others are untouched")
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Forward, ParseDirection("forward"))
	assert.Equal(t, Forward, ParseDirection(" Forward "))
	assert.Equal(t, Backward, ParseDirection("backward"))
	assert.Equal(t, Backward, ParseDirection(""))
}
