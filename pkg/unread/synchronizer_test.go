package unread

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintBeforeFirstPollIsIgnored(t *testing.T) {
	s := New("2")
	assert.False(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 1}))

	count, polled := s.Count()
	assert.False(t, polled)
	assert.Equal(t, int64(0), count)

	assert.Equal(t, int64(3), s.ApplyPoll(Snapshot{Count: 3}))
}

func TestHintForAnotherUserIsIgnored(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 0})
	assert.False(t, s.ApplyHint(Hint{UserID: "1", CaseID: "42", MessageID: 1}))
	count, _ := s.Count()
	assert.Equal(t, int64(0), count)
}

func TestHintIncrementsOnce(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 0, Watermarks: map[string]int64{}})

	assert.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 1}))
	assert.False(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 1}))

	count, _ := s.Count()
	assert.Equal(t, int64(1), count)
}

func TestHintCoveredByPollIsNotDoubleCounted(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 0})
	require.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 1}))

	// The poll ran after message 1 was committed and already counts it.
	assert.Equal(t, int64(1), s.ApplyPoll(Snapshot{Count: 1, Watermarks: map[string]int64{"42": 1}}))
	assert.Equal(t, 0, s.Pending())

	// A late duplicate of the same hint stays below the watermark.
	assert.False(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 1}))
	count, _ := s.Count()
	assert.Equal(t, int64(1), count)
}

func TestHintNewerThanPollSurvivesPoll(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 0})
	require.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 2}))

	// The poll's snapshot was taken before message 2 committed.
	assert.Equal(t, int64(2), s.ApplyPoll(Snapshot{Count: 1, Watermarks: map[string]int64{"42": 1}}))
	assert.Equal(t, 1, s.Pending())

	assert.Equal(t, int64(2), s.ApplyPoll(Snapshot{Count: 2, Watermarks: map[string]int64{"42": 2}}))
	assert.Equal(t, 0, s.Pending())
}

func TestWatermarksArePerCase(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 4, Watermarks: map[string]int64{"42": 9}})

	assert.False(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 9}))
	assert.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "7", MessageID: 1}))

	count, _ := s.Count()
	assert.Equal(t, int64(5), count)
}

func TestPollMayLowerCount(t *testing.T) {
	s := New("2")
	var seen []int64
	s.OnChange(func(c int64) { seen = append(seen, c) })

	s.ApplyPoll(Snapshot{Count: 3, Watermarks: map[string]int64{"42": 3}})
	s.ApplyPoll(Snapshot{Count: 0, Watermarks: map[string]int64{"42": 3}})

	assert.Equal(t, []int64{3, 0}, seen)
}

func TestConcurrentHintsCountDistinctMessages(t *testing.T) {
	s := New("2")
	s.ApplyPoll(Snapshot{Count: 0})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: id})
			}(int64(i))
		}
	}
	wg.Wait()

	count, _ := s.Count()
	assert.Equal(t, int64(50), count)
}

func TestPollHintsThenReadElsewhere(t *testing.T) {
	s := New("2")
	var seen []int64
	s.OnChange(func(count int64) { seen = append(seen, count) })

	assert.Equal(t, int64(3), s.ApplyPoll(Snapshot{Count: 3, Watermarks: map[string]int64{"42": 5}}))

	require.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 6}))
	require.True(t, s.ApplyHint(Hint{UserID: "2", CaseID: "42", MessageID: 7}))
	count, _ := s.Count()
	assert.Equal(t, int64(5), count)

	// One message was read on another device; the poll covers both hints.
	assert.Equal(t, int64(4), s.ApplyPoll(Snapshot{Count: 4, Watermarks: map[string]int64{"42": 7}}))
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, []int64{3, 4, 5, 4}, seen)
}
