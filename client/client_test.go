package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"chatrelay/api"
	"chatrelay/auth"
	"chatrelay/config"
	"chatrelay/domain"
	"chatrelay/hub"
	"chatrelay/store"
	"chatrelay/tests/helpers"
	"chatrelay/ws"
)

// completerFunc adapts a function to api.Completer.
type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// newRelayServer wires a full relay stack on an httptest server.
func newRelayServer(t *testing.T, completer api.Completer) (*httptest.Server, *store.SQLiteStore, *hub.Hub) {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	cfg := &config.Config{
		ReadTimeout:    time.Minute,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 65536,
	}
	resolver := &auth.StoreResolver{Sessions: st}

	h := hub.NewHub()
	go h.Run()

	wsServer := ws.NewServer(cfg, h, st, resolver)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go wsServer.Run(ctx)

	e := echo.New()
	e.Use(auth.Middleware(resolver))
	api.NewHandler(st, completer, cfg).RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, st, h
}

func createSession(t *testing.T, st *store.SQLiteStore, token, userID string) {
	t.Helper()
	if err := st.CreateSession(context.Background(), &domain.Session{Token: token, UserID: userID}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func echoCompleter(ctx context.Context, prompt string) (string, error) {
	return "reply to " + prompt, nil
}

func TestLoadFallbackGreeting(t *testing.T) {
	c := New("http://127.0.0.1:1", "t1")
	c.minReplyDelay = 0

	c.Load(context.Background())

	entries := c.Transcript().Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].Synthetic || !entries[0].IsBot || entries[0].Text != Greeting {
		t.Fatalf("unexpected fallback entry: %+v", entries[0])
	}
}

func TestLoadTranscript(t *testing.T) {
	server, st, _ := newRelayServer(t, nil)
	createSession(t, st, "t1", "u1")

	ctx := context.Background()
	human := &domain.Message{OwnerID: "u1", Text: "Hello"}
	bot := &domain.Message{OwnerID: "u1", Text: "Hi there!", IsBot: true}
	for _, m := range []*domain.Message{human, bot} {
		if err := st.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	c := New(server.URL, "t1")
	c.minReplyDelay = 0
	c.Load(ctx)

	entries := c.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Text != "Hello" || entries[0].Pending {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID != strconv.FormatInt(bot.ID, 10) || !entries[1].IsBot {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestSendAppendsOptimisticAndReply(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(echoCompleter))
	createSession(t, st, "t1", "u1")

	c := New(server.URL, "t1")
	c.minReplyDelay = 0

	reply, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "reply to Hello" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if c.Awaiting() {
		t.Fatalf("awaiting flag not cleared")
	}

	entries := c.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].IsBot || entries[0].Text != "Hello" {
		t.Fatalf("unexpected optimistic entry: %+v", entries[0])
	}
	if !entries[1].IsBot || entries[1].Text != "reply to Hello" {
		t.Fatalf("unexpected reply entry: %+v", entries[1])
	}
}

func TestSendFailureAppendsErrorEntry(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("upstream down")
	}))
	createSession(t, st, "t1", "u1")

	c := New(server.URL, "t1")
	c.minReplyDelay = 0

	if _, err := c.Send(context.Background(), "Hello"); err == nil {
		t.Fatalf("expected error")
	}
	if c.Awaiting() {
		t.Fatalf("awaiting flag not cleared")
	}

	entries := c.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	last := entries[1]
	if !last.Synthetic || !last.IsBot || last.Text != SendFailedText {
		t.Fatalf("unexpected error entry: %+v", last)
	}
}

func TestSendHonorsMinimumReplyDelay(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(echoCompleter))
	createSession(t, st, "t1", "u1")

	c := New(server.URL, "t1")
	c.minReplyDelay = 50 * time.Millisecond

	start := time.Now()
	if _, err := c.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("reply appended too early: %v", elapsed)
	}
}

func TestSubscribeUnauthorized(t *testing.T) {
	server, _, _ := newRelayServer(t, nil)

	c := New(server.URL, "bogus")
	if err := c.Subscribe(context.Background()); err == nil {
		c.Close()
		t.Fatalf("expected error for unknown token")
	}
}

func TestFeedConfirmsSentEntries(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(echoCompleter))
	createSession(t, st, "t1", "u1")

	c := New(server.URL, "t1")
	c.minReplyDelay = 0
	defer c.Close()

	ctx := context.Background()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := c.Send(ctx, "Hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The feed copies of both inserts must confirm the locally rendered
	// entries, never duplicate them.
	waitFor(t, "entries confirmed", func() bool {
		entries := c.Transcript().Entries()
		if len(entries) != 2 {
			return false
		}
		return !entries[0].Pending && !entries[1].Pending
	})

	entries := c.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected exactly 2 entries, got %d: %+v", len(entries), entries)
	}
	for _, e := range entries {
		if _, err := strconv.ParseInt(e.ID, 10, 64); err != nil {
			t.Fatalf("entry not confirmed with store id: %+v", e)
		}
	}
}

func TestSecondSessionReceivesFeed(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(echoCompleter))
	createSession(t, st, "t1", "u1")
	createSession(t, st, "t2", "u1")

	ctx := context.Background()

	sender := New(server.URL, "t1")
	sender.minReplyDelay = 0
	defer sender.Close()

	watcher := New(server.URL, "t2")
	watcher.minReplyDelay = 0
	defer watcher.Close()
	if err := watcher.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := sender.Send(ctx, "Hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The watcher never issues an HTTP call; it observes both inserts via
	// the feed alone, human before bot.
	waitFor(t, "watcher transcript", func() bool {
		return watcher.Transcript().Len() == 2
	})

	entries := watcher.Transcript().Entries()
	if entries[0].IsBot || entries[0].Text != "Hello" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if !entries[1].IsBot || entries[1].Text != "reply to Hello" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[0].Pending || entries[1].Pending {
		t.Fatalf("feed entries should be confirmed: %+v", entries)
	}
}

func TestOtherOwnersFeedNotVisible(t *testing.T) {
	server, st, _ := newRelayServer(t, completerFunc(echoCompleter))
	createSession(t, st, "t1", "u1")
	createSession(t, st, "t2", "u2")

	ctx := context.Background()

	watcher := New(server.URL, "t2")
	watcher.minReplyDelay = 0
	defer watcher.Close()
	if err := watcher.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := st.InsertMessage(ctx, &domain.Message{OwnerID: "u1", Text: "secret"}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if err := st.InsertMessage(ctx, &domain.Message{OwnerID: "u2", Text: "mine"}); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	waitFor(t, "own message", func() bool {
		return watcher.Transcript().Len() == 1
	})

	entries := watcher.Transcript().Entries()
	if entries[0].Text != "mine" {
		t.Fatalf("cross-owner message leaked: %+v", entries)
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	server, st, h := newRelayServer(t, nil)
	createSession(t, st, "t1", "u1")

	c := New(server.URL, "t1")
	if err := c.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitFor(t, "connection registered", func() bool {
		return h.ConnectionCount() == 1
	})

	c.Close()
	c.Close() // idempotent

	waitFor(t, "connection released", func() bool {
		return h.ConnectionCount() == 0
	})
}
