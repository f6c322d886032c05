package research

import (
	"context"
	"fmt"
	"log"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// RedditSource reads hot posts from a set of subreddits
type RedditSource struct {
	client     *reddit.Client
	subreddits []string
	minScore   int
	limit      int
}

// NewRedditSource uses an authenticated client when credentials are set and
// the read-only client otherwise
func NewRedditSource(cfg config.ResearchConfig, opts ...reddit.Opt) (*RedditSource, error) {
	opts = append([]reddit.Opt{reddit.WithUserAgent(userAgent)}, opts...)

	var (
		client *reddit.Client
		err    error
	)
	if cfg.RedditID != "" && cfg.RedditSecret != "" {
		client, err = reddit.NewClient(reddit.Credentials{
			ID:       cfg.RedditID,
			Secret:   cfg.RedditSecret,
			Username: cfg.RedditUsername,
			Password: cfg.RedditPassword,
		}, opts...)
	} else {
		client, err = reddit.NewReadonlyClient(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &RedditSource{
		client:     client,
		subreddits: cfg.Subreddits,
		minScore:   cfg.MinRedditScore,
		limit:      25,
	}, nil
}

func (r *RedditSource) Name() string { return "reddit" }

func (r *RedditSource) Fetch(ctx context.Context) ([]types.Topic, error) {
	var topics []types.Topic
	var lastErr error
	for _, sub := range r.subreddits {
		posts, _, err := r.client.Subreddit.HotPosts(ctx, sub, &reddit.ListOptions{Limit: r.limit})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[research] Reddit r/%s error: %v", sub, err)
			lastErr = err
			continue
		}
		for _, p := range posts {
			if p.Stickied || p.Score < r.minScore {
				continue
			}
			t := types.Topic{
				ID:      "reddit_" + p.ID,
				Title:   p.Title,
				Summary: p.Body,
				Source:  "r/" + sub,
				URL:     "https://reddit.com" + p.Permalink,
				Score:   p.Score,
			}
			if p.Created != nil {
				t.PublishedAt = p.Created.Time
			}
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return topics, nil
}
