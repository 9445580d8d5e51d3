package feed

import (
	"regexp"
	"strconv"
	"strings"
)

// Candidate is a post extracted from the raw feed document, before
// deduplication against the store.
type Candidate struct {
	ExternalID  int64
	Title       string
	Body        string
	PublishedAt string
	Category    string
	Author      string
}

// Defaults used when a field is missing from an item block.
const (
	defaultTitle    = "untitled"
	defaultCategory = "uncategorized"
	defaultAuthor   = "unknown author"
)

// Parser extracts post candidates from a raw feed document.
// Implementations never fail on malformed input; an unusable document
// yields an empty slice.
type Parser interface {
	Parse(raw string) []Candidate
}

var (
	itemRe     = regexp.MustCompile(`(?s)<item>(.*?)</item>`)
	titleRe    = fieldRe("title")
	linkRe     = regexp.MustCompile(`(?s)<link>(.*?)</link>`)
	descRe     = fieldRe("description")
	pubDateRe  = regexp.MustCompile(`(?s)<pubDate>(.*?)</pubDate>`)
	categoryRe = fieldRe("category")
	creatorRe  = fieldRe("dc:creator")
	postIDRe   = regexp.MustCompile(`post-(\d+)-`)
)

// fieldRe builds a matcher that prefers the CDATA-wrapped form of a tag and
// falls back to the plain form.
func fieldRe(tag string) *regexp.Regexp {
	q := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?s)<` + q + `>(?:<!\[CDATA\[(.*?)\]\]>|(.*?))</` + q + `>`)
}

// LenientParser extracts items with tolerant pattern matching instead of a
// structured XML parser. A slightly malformed or evolving feed still yields
// whatever items can be recognized; absent fields resolve to defaults.
type LenientParser struct{}

// Parse extracts post candidates from the raw document.
// The external id is taken from the numeric segment after "post-" in the
// item link. When the link has no such segment the candidate gets a
// negative positional placeholder id, unique within this batch only.
func (LenientParser) Parse(raw string) []Candidate {
	blocks := itemRe.FindAllStringSubmatch(raw, -1)
	if len(blocks) == 0 {
		return nil
	}

	posts := make([]Candidate, 0, len(blocks))
	for i, block := range blocks {
		item := block[1]

		link := extractField(linkRe, item)
		posts = append(posts, Candidate{
			ExternalID:  extractPostID(link, i),
			Title:       fieldOrDefault(extractField(titleRe, item), defaultTitle),
			Body:        extractField(descRe, item),
			PublishedAt: extractField(pubDateRe, item),
			Category:    fieldOrDefault(extractField(categoryRe, item), defaultCategory),
			Author:      fieldOrDefault(extractField(creatorRe, item), defaultAuthor),
		})
	}
	return posts
}

// ExtractPostID pulls the numeric external identifier out of a post
// permalink, e.g. "https://www.nodeseek.com/post-12345-1" -> 12345.
// Returns false when the link does not carry one.
func ExtractPostID(link string) (int64, bool) {
	m := postIDRe.FindStringSubmatch(link)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func extractPostID(link string, pos int) int64 {
	if id, ok := ExtractPostID(link); ok {
		return id
	}
	return -int64(pos + 1)
}

func extractField(re *regexp.Regexp, item string) string {
	m := re.FindStringSubmatch(item)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

func fieldOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
