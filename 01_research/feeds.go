package research

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"prompt-video-pipeline/types"
)

// FeedSource reads RSS/Atom feeds
type FeedSource struct {
	parser *gofeed.Parser
	feeds  []string
}

func NewFeedSource(feeds []string) *FeedSource {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &FeedSource{parser: p, feeds: feeds}
}

func (f *FeedSource) Name() string { return "rss" }

func (f *FeedSource) Fetch(ctx context.Context) ([]types.Topic, error) {
	var topics []types.Topic
	var lastErr error
	for _, u := range f.feeds {
		feed, err := f.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[research] feed %s error: %v", u, err)
			lastErr = fmt.Errorf("failed to parse RSS feed: %w", err)
			continue
		}
		for _, item := range feed.Items {
			if item == nil || strings.TrimSpace(item.Title) == "" {
				continue
			}
			t := types.Topic{
				ID:      "rss_" + itemID(item),
				Title:   strings.TrimSpace(item.Title),
				Summary: plainText(item.Description),
				Source:  feed.Title,
				URL:     item.Link,
			}
			if item.PublishedParsed != nil {
				t.PublishedAt = *item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				t.PublishedAt = *item.UpdatedParsed
			}
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return topics, nil
}

// itemID is stable across fetches so the used-topics log can dedup feed items
func itemID(item *gofeed.Item) string {
	key := item.GUID
	if key == "" {
		key = item.Link
	}
	if key == "" {
		key = item.Title
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// plainText strips markup from feed descriptions
func plainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
