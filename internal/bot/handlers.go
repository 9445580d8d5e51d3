package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

const glitchReply = "Something went wrong on our side, please try again later."

// upsertSender registers or refreshes the user behind a message. Every
// command goes through this, so a user exists after any first contact.
func (b *Bot) upsertSender(ctx context.Context, msg *tgbotapi.Message) (*model.User, error) {
	user := &model.User{ChatID: msg.Chat.ID}
	if msg.From != nil {
		user.Username = msg.From.UserName
		user.FirstName = msg.From.FirstName
		user.LastName = msg.From.LastName
	}
	if err := b.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.upsertSender(ctx, msg); err != nil {
		b.log.Error("register user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	b.reply(msg.Chat.ID, `Welcome to the RSS keyword monitor!

New posts from the feed are checked against your keywords every minute,
and you get an alert when they match.

Quick start:
/add <keyword> — watch a single keyword
/add vps sale — watch posts containing both words

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/start — register and show the welcome message
/help — this reference
/info — your account and quota
/list — your keyword subscriptions
/add <kw1> [kw2] [kw3] — add a subscription (1-3 keywords, all must match)
/del <id> — delete a subscription
/status — service status

Examples:
/add vps — posts mentioning "vps"
/add vps sale — posts mentioning both "vps" and "sale"
/add server free tutorial — all three words required

Matching is case-insensitive and checks title, body, category, and author.`)
}

func (b *Bot) handleInfo(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.upsertSender(ctx, msg)
	if err != nil {
		b.log.Error("load user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	subs, err := b.store.ActiveSubscriptions(ctx, user.ID)
	if err != nil {
		b.log.Error("list subscriptions", "user_id", user.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	b.reply(msg.Chat.ID, FormatUserInfo(user, len(subs)))
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.upsertSender(ctx, msg)
	if err != nil {
		b.log.Error("load user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	subs, err := b.store.ActiveSubscriptions(ctx, user.ID)
	if err != nil {
		b.log.Error("list subscriptions", "user_id", user.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	b.reply(msg.Chat.ID, FormatSubscriptionList(subs, user.MaxSubscriptions))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message, args string) {
	user, err := b.upsertSender(ctx, msg)
	if err != nil {
		b.log.Error("load user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	keywords, err := ParseKeywords(args)
	if err != nil {
		b.reply(msg.Chat.ID, fmt.Sprintf("%v\n\nUsage: /add <kw1> [kw2] [kw3]", err))
		return
	}

	sub, err := b.store.CreateSubscription(ctx, user.ID, keywords)
	switch {
	case errors.Is(err, storage.ErrSubscriptionLimit):
		b.reply(msg.Chat.ID, fmt.Sprintf("Subscription limit reached (%d). Delete one with /del first.", user.MaxSubscriptions))
		return
	case errors.Is(err, storage.ErrKeywordCount):
		b.reply(msg.Chat.ID, "Provide 1 to 3 keywords separated by spaces.")
		return
	case err != nil:
		b.log.Error("create subscription", "user_id", user.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("Subscription #%d added: %s\n\nYou will be alerted when a new post contains %s.",
		sub.ID, FormatKeywords(*sub), matchPhrase(sub.KeywordCount)))
}

func (b *Bot) handleDel(ctx context.Context, msg *tgbotapi.Message, args string) {
	user, err := b.upsertSender(ctx, msg)
	if err != nil {
		b.log.Error("load user", "chat_id", msg.Chat.ID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
		return
	}

	subID, err := ParseIDArg(args)
	if err != nil {
		b.reply(msg.Chat.ID, fmt.Sprintf("%v\n\nUsage: /del <id> (see /list for ids)", err))
		return
	}

	err = b.store.DeactivateSubscription(ctx, user.ID, subID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(msg.Chat.ID, "No such subscription. Use /list to see your subscription ids.")
	case err != nil:
		b.log.Error("delete subscription", "user_id", user.ID, "sub_id", subID, "error", err)
		b.reply(msg.Chat.ID, glitchReply)
	default:
		b.reply(msg.Chat.ID, fmt.Sprintf("Subscription #%d deleted.", subID))
	}
}

func (b *Bot) handleStatus(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Service status: running
Feed: %s
Check interval: %s
Keyword matching: case-insensitive, up to 3 AND-combined keywords`,
		b.cfg.FeedURL, b.cfg.CheckInterval))
}

func matchPhrase(count int) string {
	if count == 1 {
		return "the keyword"
	}
	return fmt.Sprintf("all %d keywords", count)
}
