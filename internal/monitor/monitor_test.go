package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"keyword_bot/internal/feed"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// --- mocks ---

type mockHTTP struct {
	body       string
	statusCode int
	err        error
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	code := m.statusCode
	if code == 0 {
		code = 200
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

type sendCall struct {
	ChatID   int64
	PostID   int64
	Keywords []string
}

type mockSender struct {
	mu        sync.Mutex
	calls     []sendCall
	failChats map[int64]bool
}

func (m *mockSender) Send(_ context.Context, chatID int64, post model.Post, matchedKeywords []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{ChatID: chatID, PostID: post.ExternalID, Keywords: matchedKeywords})
	if m.failChats[chatID] {
		return errors.New("simulated transport failure")
	}
	return nil
}

func (m *mockSender) sentCalls() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sendCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// --- helpers ---

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestMonitor(t *testing.T, store *storage.SQLite, transport *mockHTTP, sender *mockSender) *Monitor {
	t.Helper()
	rec := metrics.NewCollector(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := feed.NewFetcher(transport, "https://rss.example.com/")
	return New(store, fetcher, feed.LenientParser{}, sender, rec, 50, log)
}

func seedSubscriber(t *testing.T, store *storage.SQLite, chatID int64, keywords ...string) *model.User {
	t.Helper()
	ctx := context.Background()
	u := &model.User{ChatID: chatID, Username: fmt.Sprintf("user%d", chatID)}
	if err := store.UpsertUser(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if len(keywords) > 0 {
		if _, err := store.CreateSubscription(ctx, u.ID, keywords); err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
	}
	return u
}

func unpushedIDs(t *testing.T, store *storage.SQLite) []int64 {
	t.Helper()
	posts, err := store.UnpushedPosts(context.Background(), 100)
	if err != nil {
		t.Fatalf("unpushed: %v", err)
	}
	var ids []int64
	for _, p := range posts {
		ids = append(ids, p.ExternalID)
	}
	return ids
}

// --- tests ---

// The end-to-end scenario: the fixture carries post 101 whose title contains
// "优惠" and post 102 which does not. One subscriber watching "优惠" gets
// exactly one alert, post 101 becomes pushed, 102 stays eligible.
func TestTickMatchAndPush(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	user := seedSubscriber(t, store, 100, "优惠")
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	want := &Stats{
		FeedItems:     4,
		NewPosts:      4,
		UnpushedPosts: 4,
		Users:         1,
		Attempted:     1,
		Succeeded:     1,
		Failed:        0,
		PushedPosts:   1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	calls := sender.sentCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(calls))
	}
	if diff := cmp.Diff(sendCall{ChatID: 100, PostID: 101, Keywords: []string{"优惠"}}, calls[0]); diff != "" {
		t.Errorf("send mismatch (-want +got):\n%s", diff)
	}

	has, err := store.HasDelivery(ctx, user.ChatID, 101)
	if err != nil {
		t.Fatalf("has delivery: %v", err)
	}
	if !has {
		t.Error("expected delivery row for post 101")
	}

	remaining := unpushedIDs(t, store)
	for _, id := range remaining {
		if id == 101 {
			t.Error("post 101 should be pushed")
		}
	}
	found := false
	for _, id := range remaining {
		if id == 102 {
			found = true
		}
	}
	if !found {
		t.Error("post 102 should remain unpushed")
	}
}

// A user with two subscriptions both matching the same post gets exactly one
// notification, attributed to the first subscription in stored order.
func TestTickFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	u := seedSubscriber(t, store, 100, "优惠")
	if _, err := store.CreateSubscription(ctx, u.ID, []string{"vps"}); err != nil {
		t.Fatalf("second subscription: %v", err)
	}
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	if diff := cmp.Diff(1, stats.Attempted); diff != "" {
		t.Errorf("attempted mismatch (-want +got):\n%s", diff)
	}
	calls := sender.sentCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(calls))
	}
	if diff := cmp.Diff([]string{"优惠"}, calls[0].Keywords); diff != "" {
		t.Errorf("expected first subscription to win (-want +got):\n%s", diff)
	}
}

// Re-running the tick never produces a second delivery attempt for an
// already-logged (chat, post) pair, even when the first attempt failed and
// the post is still unpushed.
func TestTickAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSubscriber(t, store, 100, "优惠")
	sender := &mockSender{failChats: map[int64]bool{100: true}}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)

	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if diff := cmp.Diff(1, stats.Failed); diff != "" {
		t.Errorf("failed count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, stats.PushedPosts); diff != "" {
		t.Errorf("pushed count (-want +got):\n%s", diff)
	}

	// Post 101 is still unpushed, but the logged attempt blocks a retry.
	stats, err = m.RunTick(ctx)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if diff := cmp.Diff(0, stats.Attempted); diff != "" {
		t.Errorf("second tick attempted (-want +got):\n%s", diff)
	}
	if got := len(sender.sentCalls()); got != 1 {
		t.Errorf("expected 1 total send attempt, got %d", got)
	}
}

// A post with zero successful sends stays unpushed; one success among
// several recipients is enough to mark it pushed.
func TestTickMarkPushedGating(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSubscriber(t, store, 100, "优惠")
	seedSubscriber(t, store, 200, "优惠")
	sender := &mockSender{failChats: map[int64]bool{100: true}}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	if diff := cmp.Diff(2, stats.Attempted); diff != "" {
		t.Errorf("attempted (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, stats.Succeeded); diff != "" {
		t.Errorf("succeeded (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, stats.Failed); diff != "" {
		t.Errorf("failed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, stats.PushedPosts); diff != "" {
		t.Errorf("pushed (-want +got):\n%s", diff)
	}

	for _, id := range unpushedIDs(t, store) {
		if id == 101 {
			t.Error("post 101 should be pushed after one successful send")
		}
	}
}

// One user's failure must not prevent other users from being processed.
func TestTickUserIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSubscriber(t, store, 100, "优惠")
	seedSubscriber(t, store, 200, "hetzner")
	sender := &mockSender{failChats: map[int64]bool{100: true}}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	if diff := cmp.Diff(1, stats.Succeeded); diff != "" {
		t.Errorf("succeeded (-want +got):\n%s", diff)
	}

	var chats []int64
	for _, c := range sender.sentCalls() {
		chats = append(chats, c.ChatID)
	}
	if diff := cmp.Diff([]int64{100, 200}, chats); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
}

// A user without subscriptions produces no attempts.
func TestTickNoSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSubscriber(t, store, 100) // no keywords
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if diff := cmp.Diff(0, stats.Attempted); diff != "" {
		t.Errorf("attempted (-want +got):\n%s", diff)
	}
}

// No active users: posts are stored, nothing is attempted or pushed.
func TestTickNoUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if diff := cmp.Diff(4, stats.NewPosts); diff != "" {
		t.Errorf("new posts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, stats.Users); diff != "" {
		t.Errorf("users (-want +got):\n%s", diff)
	}
	if got := len(unpushedIDs(t, store)); got != 4 {
		t.Errorf("expected 4 unpushed posts, got %d", got)
	}
}

// An HTTP failure aborts the tick before any store write.
func TestTickFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSubscriber(t, store, 100, "优惠")
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: "upstream down", statusCode: 503}, sender)
	_, err := m.RunTick(ctx)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var fe *feed.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if got := len(unpushedIDs(t, store)); got != 0 {
		t.Errorf("expected no stored posts after failed fetch, got %d", got)
	}
}

// A document with no recognizable items ends the tick with ErrEmptyFeed.
func TestTickEmptyFeed(t *testing.T) {
	store := newTestStore(t)
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: "<html>definitely not rss</html>"}, sender)
	_, err := m.RunTick(context.Background())
	if !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("expected ErrEmptyFeed, got %v", err)
	}
}

// The run lock rejects overlapping invocations.
func TestTickRunLock(t *testing.T) {
	store := newTestStore(t)
	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, &mockSender{})

	m.running.Store(true)
	_, err := m.RunTick(context.Background())
	if !errors.Is(err, ErrTickRunning) {
		t.Fatalf("expected ErrTickRunning, got %v", err)
	}

	m.running.Store(false)
	if _, err := m.RunTick(context.Background()); err != nil {
		t.Fatalf("tick after release: %v", err)
	}
}

// Saved posts are not re-inserted on later ticks.
func TestTickIdempotentIngestion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sender := &mockSender{}

	m := newTestMonitor(t, store, &mockHTTP{body: loadFixture(t)}, sender)
	stats, err := m.RunTick(ctx)
	if err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if diff := cmp.Diff(4, stats.NewPosts); diff != "" {
		t.Errorf("first tick new posts (-want +got):\n%s", diff)
	}

	stats, err = m.RunTick(ctx)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if diff := cmp.Diff(0, stats.NewPosts); diff != "" {
		t.Errorf("second tick new posts (-want +got):\n%s", diff)
	}
}
