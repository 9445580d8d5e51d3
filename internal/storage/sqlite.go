package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"keyword_bot/internal/model"
	"keyword_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SavePosts inserts candidates not yet stored, keyed by external id.
// A failure to insert one post does not stop the rest; the first error is
// returned alongside the count of successful inserts.
func (s *SQLite) SavePosts(ctx context.Context, posts []model.Post) (int, error) {
	now := time.Now().UTC().Format(timeLayout)
	inserted := 0
	var firstErr error
	for _, p := range posts {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO posts (post_id, title, content, pub_date, category, creator, is_push, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			p.ExternalID, p.Title, p.Body, p.PublishedAt, p.Category, p.Author, now,
		)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("insert post %d: %w", p.ExternalID, err)
			}
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rows affected: %w", err)
			}
			continue
		}
		inserted += int(n)
	}
	return inserted, firstErr
}

// UnpushedPosts returns up to limit posts with pushed=false, newest first.
func (s *SQLite) UnpushedPosts(ctx context.Context, limit int) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, title, content, pub_date, category, creator, is_push, created_at
		 FROM posts WHERE is_push = 0
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unpushed posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// MarkPushed sets pushed=true for the post with the given external id.
// The flag is monotonic: nothing ever resets it.
func (s *SQLite) MarkPushed(ctx context.Context, externalID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET is_push = 1 WHERE post_id = ?`, externalID,
	)
	if err != nil {
		return fmt.Errorf("mark pushed %d: %w", externalID, err)
	}
	return nil
}

// UpsertUser creates the user on first contact, refreshes the name fields on
// later contacts, and fills user with the stored row.
func (s *SQLite) UpsertUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (chat_id, username, first_name, last_name, max_sub, is_active, created_at)
		 VALUES (?, ?, ?, ?, 10, 1, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name`,
		user.ChatID, user.Username, user.FirstName, user.LastName, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	stored, err := s.GetUserByChatID(ctx, user.ChatID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByChatID returns the user with the given chat id.
func (s *SQLite) GetUserByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username, first_name, last_name, max_sub, is_active, created_at
		 FROM users WHERE chat_id = ?`, chatID,
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ActiveUsers returns all users with is_active=1.
func (s *SQLite) ActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, username, first_name, last_name, max_sub, is_active, created_at
		 FROM users WHERE is_active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateSubscription stores a new active subscription for the user.
func (s *SQLite) CreateSubscription(ctx context.Context, userID int64, keywords []string) (*model.Subscription, error) {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 || len(kws) > 3 {
		return nil, ErrKeywordCount
	}

	var maxSub, current int
	err := s.db.QueryRowContext(ctx,
		`SELECT max_sub FROM users WHERE id = ?`, userID,
	).Scan(&maxSub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user quota: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM keyword_subs WHERE user_id = ? AND is_active = 1`, userID,
	).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}
	if current >= maxSub {
		return nil, ErrSubscriptionLimit
	}

	sub := model.Subscription{
		UserID:       userID,
		KeywordCount: len(kws),
		Keyword1:     kws[0],
		IsActive:     true,
	}
	if len(kws) > 1 {
		sub.Keyword2 = kws[1]
	}
	if len(kws) > 2 {
		sub.Keyword3 = kws[2]
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keyword_subs (user_id, keywords_count, keyword1, keyword2, keyword3, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		sub.UserID, sub.KeywordCount, sub.Keyword1, sub.Keyword2, sub.Keyword3, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return &sub, nil
}

// ActiveSubscriptions returns the user's active subscriptions in stored order.
func (s *SQLite) ActiveSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, keywords_count, keyword1, keyword2, keyword3, is_active, created_at
		 FROM keyword_subs WHERE user_id = ? AND is_active = 1 ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var isActive int
		var created string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.KeywordCount,
			&sub.Keyword1, &sub.Keyword2, &sub.Keyword3, &isActive, &created); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.IsActive = isActive == 1
		sub.CreatedAt, _ = time.Parse(timeLayout, created)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeactivateSubscription soft-deletes a subscription owned by the user.
func (s *SQLite) DeactivateSubscription(ctx context.Context, userID, subID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE keyword_subs SET is_active = 0 WHERE id = ? AND user_id = ? AND is_active = 1`,
		subID, userID,
	)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasDelivery reports whether a delivery row exists for (chatID, postExternalID).
func (s *SQLite) HasDelivery(ctx context.Context, chatID, postExternalID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM push_logs WHERE chat_id = ? AND post_id = ?`,
		chatID, postExternalID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}
	return count > 0, nil
}

// CreateDelivery appends a delivery record and populates its ID and
// CreatedAt. The unique (chat_id, post_id) index rejects a second row for
// the same pair.
func (s *SQLite) CreateDelivery(ctx context.Context, d *model.Delivery) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO push_logs (user_id, chat_id, post_id, sub_id, status, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.ChatID, d.PostExternalID, d.SubscriptionID, string(d.Status), d.ErrorMessage, now,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	d.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// UpdateDeliveryStatus overwrites the status and error message of a delivery.
func (s *SQLite) UpdateDeliveryStatus(ctx context.Context, id int64, status model.DeliveryStatus, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE push_logs SET status = ?, error_message = ? WHERE id = ?`,
		string(status), errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("update delivery %d: %w", id, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPost(row scannable) (model.Post, error) {
	var p model.Post
	var isPush int
	var created sql.NullString
	err := row.Scan(&p.ID, &p.ExternalID, &p.Title, &p.Body, &p.PublishedAt,
		&p.Category, &p.Author, &isPush, &created)
	if err != nil {
		return p, fmt.Errorf("scan post: %w", err)
	}
	p.Pushed = isPush == 1
	if created.Valid {
		p.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return p, nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var isActive int
	var created sql.NullString
	err := row.Scan(&u.ID, &u.ChatID, &u.Username, &u.FirstName, &u.LastName,
		&u.MaxSubscriptions, &isActive, &created)
	if err != nil {
		return nil, err
	}
	u.IsActive = isActive == 1
	if created.Valid {
		u.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &u, nil
}
