// Package matcher implements keyword matching of posts against subscriptions.
package matcher

import (
	"strings"

	"keyword_bot/internal/model"
)

// SearchText builds the case-folded composite text a subscription is matched
// against: title, body, category, and author joined with spaces.
func SearchText(post model.Post) string {
	return strings.ToLower(post.Title + " " + post.Body + " " + post.Category + " " + post.Author)
}

// Match reports whether the subscription matches the given composite text
// (as produced by SearchText).
//
// Keyword1 is mandatory. With KeywordCount 2 the second keyword must also be
// present, and with KeywordCount 3 both the second and third must be. An
// empty keyword slot required by the count never matches; a subscription
// with count 3 and a missing keyword3 matches nothing. Matching is
// case-insensitive substring containment.
func Match(searchText string, sub model.Subscription) bool {
	kw1 := strings.ToLower(sub.Keyword1)
	kw2 := strings.ToLower(sub.Keyword2)
	kw3 := strings.ToLower(sub.Keyword3)

	if kw1 == "" || !strings.Contains(searchText, kw1) {
		return false
	}

	switch sub.KeywordCount {
	case 1:
		return true
	case 2:
		return kw2 != "" && strings.Contains(searchText, kw2)
	case 3:
		return kw2 != "" && kw3 != "" &&
			strings.Contains(searchText, kw2) && strings.Contains(searchText, kw3)
	}
	return false
}
