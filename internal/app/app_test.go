package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/auth"
	"github.com/caseportal/messaging/internal/config"
	"github.com/caseportal/messaging/pkg/client"
	"github.com/caseportal/messaging/pkg/database"
	"github.com/caseportal/messaging/pkg/jwt"
	"github.com/caseportal/messaging/pkg/pubsub"
	"github.com/caseportal/messaging/pkg/storage"
)

type testEnv struct {
	app    *App
	server *httptest.Server
	tokens *jwt.Manager
}

func testConfig() *config.Config {
	return &config.Config{
		WebSocket: config.WebSocketConfig{
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      5 * time.Second,
			MaxMessageSize: 16384,
			SendBuffer:     64,
		},
		Auth:  config.AuthConfig{VerifyTimeout: 2 * time.Second},
		Relay: config.RelayConfig{MaxContentLength: 100},
		Cache: config.CacheConfig{
			Enabled:    true,
			KeyPrefix:  "test",
			HistoryTTL: time.Minute,
			UnreadTTL:  time.Minute,
			AccessTTL:  time.Minute,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "gateway.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, Models()...))

	ctx := context.Background()
	participants := access.NewGormChecker(db)
	require.NoError(t, participants.AddParticipant(ctx, "42", "1", access.ParticipantClient))
	require.NoError(t, participants.AddParticipant(ctx, "42", "2", access.ParticipantStaff))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tokens, err := jwt.NewManager(jwt.Config{HMACSecret: "test-secret", Issuer: "test", AccessDuration: time.Hour})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	objects, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	a, err := New(runCtx, testConfig(), Deps{
		DB:       db,
		Redis:    rdb,
		Bus:      pubsub.NewNop(),
		Verifier: auth.NewJWTVerifier(tokens),
		Objects:  objects,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(runCtx))

	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-a.Hub.Done()
	})

	return &testEnv{app: a, server: srv, tokens: tokens}
}

func (e *testEnv) client(t *testing.T, userID, role string) *client.Client {
	t.Helper()
	token, _, err := e.tokens.IssueAccessToken(userID, role)
	require.NoError(t, err)
	c, err := client.New(client.Config{BaseURL: e.server.URL, Token: token})
	require.NoError(t, err)
	return c
}

func dial(t *testing.T, c *client.Client, handshake bool) *client.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := c.Dial(ctx, handshake)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func next(t *testing.T, s *client.Session, wantType string) client.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "session closed while waiting for %s", wantType)
		require.Equal(t, wantType, ev.Type, "unexpected frame: %s", string(ev.Raw))
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", wantType)
		return client.Event{}
	}
}

func authOK(t *testing.T, s *client.Session) {
	t.Helper()
	var res struct {
		Success bool   `json:"success"`
		UserID  string `json:"user_id"`
	}
	require.NoError(t, next(t, s, "auth_result").Decode(&res))
	require.True(t, res.Success)
}

func expectError(t *testing.T, s *client.Session, code string) client.ErrorEvent {
	t.Helper()
	var e client.ErrorEvent
	require.NoError(t, next(t, s, "error").Decode(&e))
	assert.Equal(t, code, e.Code)
	return e
}

func TestConversationAcrossTwoParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c1 := env.client(t, "1", "client")
	c2 := env.client(t, "2", "staff")

	s1 := dial(t, c1, true)
	authOK(t, s1)

	token2, _, err := env.tokens.IssueAccessToken("2", "staff")
	require.NoError(t, err)
	s2 := dial(t, c2, false)
	require.NoError(t, s2.Auth(token2))
	authOK(t, s2)

	require.NoError(t, s1.Join("42"))
	next(t, s1, "case_joined")
	require.NoError(t, s2.Join("42"))
	next(t, s2, "case_joined")

	require.NoError(t, s1.Send("42", "2", "Hello", "r1"))

	var ack client.AckEvent
	require.NoError(t, next(t, s1, "message_sent").Decode(&ack))
	assert.Equal(t, "r1", ack.ClientRef)
	assert.Equal(t, int64(1), ack.Message.ID)

	var pushed client.MessageEvent
	require.NoError(t, next(t, s2, "message").Decode(&pushed))
	assert.Equal(t, int64(1), pushed.ID)
	assert.Equal(t, "1", pushed.SenderID)
	assert.Equal(t, "Hello", pushed.Content)

	var hint struct {
		UserID    string `json:"user_id"`
		CaseID    string `json:"case_id"`
		MessageID int64  `json:"message_id"`
	}
	require.NoError(t, next(t, s2, "unread_increment").Decode(&hint))
	assert.Equal(t, "2", hint.UserID)
	assert.Equal(t, int64(1), hint.MessageID)

	require.NoError(t, s2.Send("42", "1", "Reply", "r2"))
	require.NoError(t, next(t, s2, "message_sent").Decode(&ack))
	assert.Equal(t, int64(2), ack.Message.ID)
	require.NoError(t, next(t, s1, "message").Decode(&pushed))
	assert.Equal(t, int64(2), pushed.ID)
	assert.Equal(t, "Reply", pushed.Content)
	next(t, s1, "unread_increment")

	page, err := c1.Messages(ctx, "42", client.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "Hello", page.Messages[0].Content)
	assert.Equal(t, "Reply", page.Messages[1].Content)
	assert.False(t, page.HasMore)
}

func TestReconnectGetsNoReplayAndBackfillsOverREST(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c1 := env.client(t, "1", "client")
	c2 := env.client(t, "2", "staff")

	s1 := dial(t, c1, true)
	authOK(t, s1)
	require.NoError(t, s1.Join("42"))
	next(t, s1, "case_joined")

	s2 := dial(t, c2, true)
	authOK(t, s2)
	require.NoError(t, s2.Join("42"))
	next(t, s2, "case_joined")
	require.NoError(t, s2.Close())

	require.Eventually(t, func() bool {
		members, err := env.app.Hub.RoomMembers("42")
		return err == nil && len(members) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s1.Send("42", "2", "While you were away", ""))
	next(t, s1, "message_sent")

	s2 = dial(t, c2, true)
	authOK(t, s2)
	require.NoError(t, s2.Join("42"))
	next(t, s2, "case_joined")
	require.NoError(t, s2.Ping())
	next(t, s2, "pong")

	page, err := c2.Messages(ctx, "42", client.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "While you were away", page.Messages[0].Content)

	count, err := c2.Unread(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count.Count)
	assert.Equal(t, int64(1), count.Watermarks["42"])

	n, err := c2.MarkRead(ctx, "42", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err = c2.Unread(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count.Count)
}

func TestAccessIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outsider := env.client(t, "3", "client")
	s3 := dial(t, outsider, true)
	authOK(t, s3)

	require.NoError(t, s3.Join("42"))
	expectError(t, s3, "FORBIDDEN")

	require.NoError(t, s3.Send("42", "1", "let me in", "x"))
	e := expectError(t, s3, "FORBIDDEN")
	assert.Equal(t, "x", e.ClientRef)

	_, err := outsider.Messages(ctx, "42", client.ListOptions{})
	require.Error(t, err)
	assert.True(t, client.IsForbidden(err))

	c1 := env.client(t, "1", "client")
	s1 := dial(t, c1, true)
	authOK(t, s1)
	require.NoError(t, s1.Join("42"))
	next(t, s1, "case_joined")

	require.NoError(t, s1.Send("42", "3", "not a participant", ""))
	expectError(t, s1, "INVALID_RECIPIENT")
	require.NoError(t, s1.Send("42", "1", "note to self", ""))
	expectError(t, s1, "INVALID_RECIPIENT")
	require.NoError(t, s1.Send("42", "2", "   ", ""))
	expectError(t, s1, "EMPTY_CONTENT")
}

func TestTranscriptExportAndDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c1 := env.client(t, "1", "client")
	s1 := dial(t, c1, true)
	authOK(t, s1)
	require.NoError(t, s1.Join("42"))
	next(t, s1, "case_joined")
	require.NoError(t, s1.Send("42", "2", "Hello", ""))
	next(t, s1, "message_sent")
	require.NoError(t, s1.Send("42", "2", "Second", ""))
	next(t, s1, "message_sent")

	staff := env.client(t, "2", "staff")
	exp, err := staff.ExportTranscript(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Messages)
	assert.Equal(t, int64(2), exp.LastID)

	list, err := c1.Transcripts(ctx, "42")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, exp.Key, list[0].Key)

	body, err := c1.DownloadTranscript(ctx, "42", list[0].Name())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"content":"Hello"`)
	assert.Contains(t, lines[1], `"content":"Second"`)

	outsider := env.client(t, "3", "client")
	_, err = outsider.ExportTranscript(ctx, "42")
	assert.True(t, client.IsForbidden(err))
	_, err = outsider.DownloadTranscript(ctx, "42", list[0].Name())
	assert.True(t, client.IsForbidden(err))

	_, err = c1.DownloadTranscript(ctx, "42", "missing.jsonl")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestInvalidTokenLeavesConnectionUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	c, err := client.New(client.Config{BaseURL: env.server.URL, Token: "not-a-token"})
	require.NoError(t, err)
	s := dial(t, c, true)

	var res struct {
		Success bool `json:"success"`
	}
	require.NoError(t, next(t, s, "auth_result").Decode(&res))
	assert.False(t, res.Success)

	require.NoError(t, s.Join("42"))
	expectError(t, s, "NOT_AUTHENTICATED")

	token, _, err := env.tokens.IssueAccessToken("1", "client")
	require.NoError(t, err)
	require.NoError(t, s.Auth(token))
	expectError(t, s, "AUTH_INVALID")

	require.NoError(t, s.Ping())
	next(t, s, "pong")

	_, err = c.Unread(context.Background())
	require.Error(t, err)
}

func TestShutdownClosesSessions(t *testing.T) {
	env := newTestEnv(t)

	s := dial(t, env.client(t, "1", "client"), true)
	authOK(t, s)

	env.app.Stop()

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session not closed on shutdown")
	}
}
