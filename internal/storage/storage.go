// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"keyword_bot/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	// ErrNotFound is returned when the requested row does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrKeywordCount is returned when a subscription is created with zero
	// or more than three keywords.
	ErrKeywordCount = errors.New("subscription must have 1 to 3 keywords")

	// ErrSubscriptionLimit is returned when a user is already at their
	// maximum number of active subscriptions.
	ErrSubscriptionLimit = errors.New("subscription limit reached")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// SavePosts inserts the candidates that are not yet stored, keyed by
	// external id, and returns the number of newly inserted posts.
	// Already-stored posts are left untouched; the call is idempotent.
	SavePosts(ctx context.Context, posts []model.Post) (int, error)
	// UnpushedPosts returns up to limit posts with pushed=false,
	// newest-created first.
	UnpushedPosts(ctx context.Context, limit int) ([]model.Post, error)
	// MarkPushed sets pushed=true for the post with the given external id.
	MarkPushed(ctx context.Context, externalID int64) error

	// UpsertUser creates the user on first contact or refreshes the name
	// fields on later contacts, and fills in the stored row.
	UpsertUser(ctx context.Context, user *model.User) error
	GetUserByChatID(ctx context.Context, chatID int64) (*model.User, error)
	ActiveUsers(ctx context.Context) ([]model.User, error)

	// CreateSubscription stores a new active subscription for the user.
	// Returns ErrKeywordCount or ErrSubscriptionLimit on rejection.
	CreateSubscription(ctx context.Context, userID int64, keywords []string) (*model.Subscription, error)
	ActiveSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error)
	// DeactivateSubscription soft-deletes a subscription owned by the given
	// user. Returns ErrNotFound when no matching active subscription exists.
	DeactivateSubscription(ctx context.Context, userID, subID int64) error

	// HasDelivery reports whether a delivery row exists for the pair.
	HasDelivery(ctx context.Context, chatID, postExternalID int64) (bool, error)
	// CreateDelivery appends a delivery record. The (chat_id, post_id)
	// uniqueness constraint makes a second row for the same pair fail.
	CreateDelivery(ctx context.Context, d *model.Delivery) error
	// UpdateDeliveryStatus overwrites the status and error message of an
	// existing delivery row.
	UpdateDeliveryStatus(ctx context.Context, id int64, status model.DeliveryStatus, errorMessage string) error

	Close() error
}
