// Package model defines the domain types used across the application.
package model

import "time"

// Post is a feed post persisted for keyword matching.
// ExternalID is the feed-assigned numeric identifier extracted from the
// post's permalink; it is unique across all stored posts.
type Post struct {
	ID          int64
	ExternalID  int64
	Title       string
	Body        string
	PublishedAt string
	Category    string
	Author      string
	Pushed      bool
	CreatedAt   time.Time
}

// User is a chat participant who can hold keyword subscriptions.
// ChatID is the stable messaging-transport identity.
type User struct {
	ID               int64
	ChatID           int64
	Username         string
	FirstName        string
	LastName         string
	MaxSubscriptions int
	IsActive         bool
	CreatedAt        time.Time
}

// Subscription is a set of 1-3 keywords, AND-combined, owned by a user.
// KeywordCount equals the number of non-empty keyword slots.
// Deletion is always a soft delete (IsActive = false).
type Subscription struct {
	ID           int64
	UserID       int64
	KeywordCount int
	Keyword1     string
	Keyword2     string
	Keyword3     string
	IsActive     bool
	CreatedAt    time.Time
}

// Keywords returns the non-empty keyword slots in order.
func (s Subscription) Keywords() []string {
	out := make([]string, 0, 3)
	for _, kw := range []string{s.Keyword1, s.Keyword2, s.Keyword3} {
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// DeliveryStatus is the recorded outcome of a notification attempt.
type DeliveryStatus string

// Supported delivery statuses.
const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery is an append-only record of one notification attempt.
// At most one row exists per (ChatID, PostExternalID) pair; this is the
// storage-level guarantee behind at-most-once delivery.
type Delivery struct {
	ID             int64
	UserID         int64
	ChatID         int64
	PostExternalID int64
	SubscriptionID int64
	Status         DeliveryStatus
	ErrorMessage   string
	CreatedAt      time.Time
}
