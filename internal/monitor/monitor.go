// Package monitor runs the ingestion-and-notification pipeline: fetch the
// feed, store new posts, match them against user subscriptions, and send
// alerts with at-most-once delivery per (user, post) pair.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"keyword_bot/internal/feed"
	"keyword_bot/internal/matcher"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

// ErrTickRunning is returned when a tick is invoked while another one is
// still in progress. Overlapping invocations are rejected, not queued.
var ErrTickRunning = errors.New("monitoring tick already running")

// ErrEmptyFeed is returned when the feed fetch succeeded but no items could
// be extracted from the document.
var ErrEmptyFeed = errors.New("feed yielded no items")

// Sender delivers one alert for a matched post to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, post model.Post, matchedKeywords []string) error
}

// Stats summarizes one completed tick.
type Stats struct {
	FeedItems     int `json:"feed_items"`
	NewPosts      int `json:"new_posts"`
	UnpushedPosts int `json:"unpushed_posts"`
	Users         int `json:"users"`
	Attempted     int `json:"attempted_notifications"`
	Succeeded     int `json:"successful_notifications"`
	Failed        int `json:"failed_notifications"`
	PushedPosts   int `json:"pushed_posts"`
}

// Monitor orchestrates the per-tick pipeline.
type Monitor struct {
	store   storage.Storage
	fetcher *feed.Fetcher
	parser  feed.Parser
	sender  Sender
	rec     metrics.Recorder
	limit   int
	log     *slog.Logger

	running atomic.Bool
}

// New creates a Monitor. limit bounds the unpushed-post batch per tick.
func New(store storage.Storage, fetcher *feed.Fetcher, parser feed.Parser, sender Sender, rec metrics.Recorder, limit int, log *slog.Logger) *Monitor {
	return &Monitor{
		store:   store,
		fetcher: fetcher,
		parser:  parser,
		sender:  sender,
		rec:     rec,
		limit:   limit,
		log:     log,
	}
}

// RunTick executes one full pipeline pass. It returns ErrTickRunning when
// another tick holds the run lock. The returned stats are valid whenever
// the error is nil.
func (m *Monitor) RunTick(ctx context.Context) (*Stats, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrTickRunning
	}
	defer m.running.Store(false)

	stats, err := m.tick(ctx)
	m.rec.RecordTick(err == nil)
	return stats, err
}

func (m *Monitor) tick(ctx context.Context) (*Stats, error) {
	raw, err := m.fetcher.Fetch(ctx)
	if err != nil {
		m.rec.RecordFetchFailure()
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	candidates := m.parser.Parse(raw)
	if len(candidates) == 0 {
		m.log.Warn("no items extracted from feed document", "bytes", len(raw))
		return nil, ErrEmptyFeed
	}

	stats := &Stats{FeedItems: len(candidates)}

	saved, err := m.store.SavePosts(ctx, candidatePosts(candidates))
	if err != nil {
		// Individual insert failures are already isolated inside SavePosts;
		// whatever was stored stays stored.
		m.log.Error("save posts", "saved", saved, "error", err)
	}
	stats.NewPosts = saved
	m.rec.RecordNewPosts(saved)

	posts, err := m.store.UnpushedPosts(ctx, m.limit)
	if err != nil {
		return nil, fmt.Errorf("load unpushed posts: %w", err)
	}
	stats.UnpushedPosts = len(posts)
	if len(posts) == 0 {
		return stats, nil
	}

	users, err := m.store.ActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active users: %w", err)
	}
	stats.Users = len(users)
	if len(users) == 0 {
		return stats, nil
	}

	pushed := make(map[int64]struct{})
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		if err := m.processUser(ctx, user, posts, stats, pushed); err != nil {
			m.log.Error("process user", "user_id", user.ID, "chat_id", user.ChatID, "error", err)
		}
	}

	// Only posts with at least one successful send become pushed; a post
	// with zero successes stays eligible next tick.
	for externalID := range pushed {
		if err := m.store.MarkPushed(ctx, externalID); err != nil {
			m.log.Error("mark pushed", "post_id", externalID, "error", err)
		}
	}
	stats.PushedPosts = len(pushed)
	m.rec.RecordPushedPosts(len(pushed))

	m.log.Info("tick complete",
		"feed_items", stats.FeedItems,
		"new_posts", stats.NewPosts,
		"unpushed", stats.UnpushedPosts,
		"users", stats.Users,
		"sent", stats.Succeeded,
		"failed", stats.Failed,
		"pushed", stats.PushedPosts,
	)
	return stats, nil
}

// processUser evaluates every unpushed post against one user's
// subscriptions. Errors are returned to the caller, which contains them so
// one user's failure never aborts the others.
func (m *Monitor) processUser(ctx context.Context, user model.User, posts []model.Post, stats *Stats, pushed map[int64]struct{}) error {
	subs, err := m.store.ActiveSubscriptions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	for _, post := range posts {
		delivered, err := m.store.HasDelivery(ctx, user.ChatID, post.ExternalID)
		if err != nil {
			m.log.Error("check delivery", "chat_id", user.ChatID, "post_id", post.ExternalID, "error", err)
			continue
		}
		if delivered {
			continue
		}

		searchText := matcher.SearchText(post)
		for _, sub := range subs {
			if !matcher.Match(searchText, sub) {
				continue
			}
			// First matching subscription wins; a post matching several of
			// the user's subscriptions still produces one notification.
			m.notify(ctx, user, post, sub, stats, pushed)
			break
		}
	}
	return nil
}

// notify reserves the delivery row, sends the alert, and records the
// outcome. The row is written before the send so that a crash in between
// cannot cause a duplicate send on the next tick.
func (m *Monitor) notify(ctx context.Context, user model.User, post model.Post, sub model.Subscription, stats *Stats, pushed map[int64]struct{}) {
	stats.Attempted++

	d := model.Delivery{
		UserID:         user.ID,
		ChatID:         user.ChatID,
		PostExternalID: post.ExternalID,
		SubscriptionID: sub.ID,
		Status:         model.DeliveryFailed,
		ErrorMessage:   "send not confirmed",
	}
	if err := m.store.CreateDelivery(ctx, &d); err != nil {
		// The unique (chat_id, post_id) index is the real at-most-once
		// guard; losing the race means someone else logged this pair.
		stats.Failed++
		m.rec.RecordNotificationFailed()
		m.log.Error("reserve delivery", "chat_id", user.ChatID, "post_id", post.ExternalID, "error", err)
		return
	}

	if err := m.sender.Send(ctx, user.ChatID, post, sub.Keywords()); err != nil {
		stats.Failed++
		m.rec.RecordNotificationFailed()
		if uerr := m.store.UpdateDeliveryStatus(ctx, d.ID, model.DeliveryFailed, truncate(err.Error(), 500)); uerr != nil {
			m.log.Error("record failed delivery", "delivery_id", d.ID, "error", uerr)
		}
		return
	}

	stats.Succeeded++
	m.rec.RecordNotificationSent()
	pushed[post.ExternalID] = struct{}{}
	if err := m.store.UpdateDeliveryStatus(ctx, d.ID, model.DeliverySent, ""); err != nil {
		m.log.Error("record sent delivery", "delivery_id", d.ID, "error", err)
	}
}

func candidatePosts(candidates []feed.Candidate) []model.Post {
	posts := make([]model.Post, len(candidates))
	for i, c := range candidates {
		posts[i] = model.Post{
			ExternalID:  c.ExternalID,
			Title:       c.Title,
			Body:        c.Body,
			PublishedAt: c.PublishedAt,
			Category:    c.Category,
			Author:      c.Author,
		}
	}
	return posts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
