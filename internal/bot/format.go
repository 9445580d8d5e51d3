package bot

import (
	"fmt"
	"strings"

	"keyword_bot/internal/model"
)

// FormatKeywords joins a subscription's keywords for display.
func FormatKeywords(sub model.Subscription) string {
	return strings.Join(sub.Keywords(), " + ")
}

// FormatSubscriptionList formats a user's active subscriptions.
func FormatSubscriptionList(subs []model.Subscription, maxSubs int) string {
	if len(subs) == 0 {
		return "You have no subscriptions yet. Use /add <keyword> to create one."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your subscriptions (%d/%d):\n", len(subs), maxSubs)
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n#%d  %s", sub.ID, FormatKeywords(sub))
		if sub.KeywordCount > 1 {
			fmt.Fprintf(&b, "  (all %d required)", sub.KeywordCount)
		}
	}
	b.WriteString("\n\nUse /del <id> to delete a subscription.")
	return b.String()
}

// FormatUserInfo formats account details for /info.
func FormatUserInfo(user *model.User, activeSubs int) string {
	status := "active"
	if !user.IsActive {
		status = "disabled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User #%d\n", user.ID)
	fmt.Fprintf(&b, "Chat ID: %d\n", user.ChatID)
	if user.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", user.Username)
	}
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	fmt.Fprintf(&b, "Subscriptions: %d/%d\n", activeSubs, user.MaxSubscriptions)
	fmt.Fprintf(&b, "Account: %s", status)
	return b.String()
}
