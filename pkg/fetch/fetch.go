package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"medbrief/internal/store"
)

// Source fetches new literature for a topic.
type Source interface {
	Name() string
	Fetch(ctx context.Context, topic *store.Topic) ([]store.Literature, error)
}

// FeedSource pulls literature from an RSS/Atom search feed. The URL template
// contains a single %s that receives the topic's keyword query.
type FeedSource struct {
	client      *http.Client
	parser      *gofeed.Parser
	name        string
	urlTemplate string
}

// NewFeedSource creates a feed-backed literature source.
func NewFeedSource(name, urlTemplate string) *FeedSource {
	return &FeedSource{
		client:      &http.Client{Timeout: 30 * time.Second},
		parser:      gofeed.NewParser(),
		name:        name,
		urlTemplate: urlTemplate,
	}
}

func (f *FeedSource) Name() string { return f.name }

func (f *FeedSource) Fetch(ctx context.Context, topic *store.Topic) ([]store.Literature, error) {
	query := url.QueryEscape(strings.Join(topic.Keywords, " OR "))
	feedURL := fmt.Sprintf(f.urlTemplate, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", f.name, err)
	}
	req.Header.Set("User-Agent", "medbrief/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", f.name, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.name, err)
	}

	var items []store.Literature
	for _, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		var authors []string
		for _, a := range entry.Authors {
			if a != nil && a.Name != "" {
				authors = append(authors, a.Name)
			}
		}

		items = append(items, store.Literature{
			TopicID:         topic.ID,
			Title:           entry.Title,
			Authors:         authors,
			PublicationDate: published,
			JournalName:     parsed.Title,
			Keywords:        entry.Categories,
			Summary:         truncate(entry.Description, 2000),
			LiteratureType:  classify(entry.Title, entry.Categories),
		})
	}
	return items, nil
}

// classify infers a literature type label from the entry's title and
// categories. Defaults to "Article".
func classify(title string, categories []string) string {
	text := strings.ToLower(title + " " + strings.Join(categories, " "))
	switch {
	case strings.Contains(text, "meta-analysis"):
		return "Meta-analysis"
	case strings.Contains(text, "clinical trial"), strings.Contains(text, "phase 3"), strings.Contains(text, "phase 2"):
		return "Clinical Trial"
	case strings.Contains(text, "review"):
		return "Review"
	}
	return "Article"
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
