// Package notify sends keyword match alerts to users over Telegram.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"keyword_bot/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher formats and sends match notifications. A failed send is
// reported as an error to the caller, which records it; it never aborts
// the surrounding tick.
type Dispatcher struct {
	api         telegramAPI
	limiter     *rate.Limiter
	postBaseURL string
	log         *slog.Logger
}

// New creates a Dispatcher. postBaseURL is the site origin used to build
// post permalinks, e.g. "https://www.nodeseek.com".
func New(api telegramAPI, postBaseURL string, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		api: api,
		// Telegram allows roughly 20 messages per second overall.
		limiter:     rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		postBaseURL: strings.TrimRight(postBaseURL, "/"),
		log:         log,
	}
}

// Send delivers one alert for a matched post to the given chat.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, post model.Post, matchedKeywords []string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, FormatAlert(post, matchedKeywords, d.postBaseURL))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := d.api.Send(msg); err != nil {
		d.log.Error("send notification", "chat_id", chatID, "post_id", post.ExternalID, "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// FormatAlert renders the notification text: the matched keyword list and
// the post title as a Markdown link to its permalink.
func FormatAlert(post model.Post, matchedKeywords []string, postBaseURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 %s\n\n", strings.Join(matchedKeywords, ", "))
	fmt.Fprintf(&b, "[%s](%s)", post.Title, PostURL(postBaseURL, post.ExternalID))
	return b.String()
}

// PostURL builds the permalink for a post from its external id.
func PostURL(postBaseURL string, externalID int64) string {
	return fmt.Sprintf("%s/post-%d-1", strings.TrimRight(postBaseURL, "/"), externalID)
}
