package feed

import "github.com/mmcdole/gofeed"

// StrictParser parses the document with a structured feed parser. It is a
// drop-in replacement for LenientParser for feeds known to be well formed;
// a document the parser rejects yields an empty slice, same as the lenient
// path.
type StrictParser struct {
	parser *gofeed.Parser
}

// NewStrictParser creates a StrictParser.
func NewStrictParser() *StrictParser {
	return &StrictParser{parser: gofeed.NewParser()}
}

// Parse extracts post candidates using gofeed.
func (p *StrictParser) Parse(raw string) []Candidate {
	parsed, err := p.parser.ParseString(raw)
	if err != nil {
		return nil
	}

	posts := make([]Candidate, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		posts = append(posts, Candidate{
			ExternalID:  extractPostID(item.Link, i),
			Title:       fieldOrDefault(item.Title, defaultTitle),
			Body:        item.Description,
			PublishedAt: item.Published,
			Category:    fieldOrDefault(firstOf(item.Categories), defaultCategory),
			Author:      fieldOrDefault(itemAuthor(item), defaultAuthor),
		})
	}
	return posts
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func itemAuthor(item *gofeed.Item) string {
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator[0]
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}
