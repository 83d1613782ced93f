package client

import (
	"context"
	"time"

	"github.com/caseportal/messaging/pkg/unread"
)

// UnreadTracker keeps an unread.Synchronizer fed from a session's hints
// and a periodic REST poll.
type UnreadTracker struct {
	client   *Client
	sync     *unread.Synchronizer
	interval time.Duration
}

// TrackUnread wires s's unread_increment frames into a synchronizer for
// userID. Call Run to start polling.
func (c *Client) TrackUnread(s *Session, userID string, interval time.Duration) *UnreadTracker {
	sync := unread.New(userID)
	s.OnHint(func(h unread.Hint) { sync.ApplyHint(h) })
	return &UnreadTracker{client: c, sync: sync, interval: interval}
}

// Synchronizer exposes the tracked count.
func (t *UnreadTracker) Synchronizer() *unread.Synchronizer {
	return t.sync
}

// Poll fetches the authoritative count once and applies it.
func (t *UnreadTracker) Poll(ctx context.Context) (int64, error) {
	snap, err := t.client.Unread(ctx)
	if err != nil {
		return 0, err
	}
	return t.sync.ApplyPoll(snap.Snapshot()), nil
}

// Run polls immediately and then on every interval until ctx ends. Poll
// errors are skipped; the next tick retries.
func (t *UnreadTracker) Run(ctx context.Context) {
	t.Poll(ctx)

	if t.interval <= 0 {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}
