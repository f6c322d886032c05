package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

const userAgent = "prompt-video-pipeline/1.0"

// hookKeywords boost a topic's score when present
var hookKeywords = []string{
	"discovered", "secret", "first", "history", "mystery", "future",
	"ancient", "space", "ocean", "world", "why", "how",
}

// Source yields candidate topics
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]types.Topic, error)
}

// Scraper collects topics from every source, scores them and skips the
// ones already turned into videos
type Scraper struct {
	sources  []Source
	lookback time.Duration
	max      int
	usedPath string
	used     map[string]bool
	now      func() time.Time
}

// New builds the Reddit and feed sources from config
func New(cfg *config.Config) *Scraper {
	var sources []Source
	if len(cfg.Research.Subreddits) > 0 {
		src, err := NewRedditSource(cfg.Research)
		if err != nil {
			log.Printf("[research] ⚠️  Reddit disabled: %v", err)
		} else {
			sources = append(sources, src)
		}
	}
	if len(cfg.Research.Feeds) > 0 {
		sources = append(sources, NewFeedSource(cfg.Research.Feeds))
	}
	s := NewWithSources(cfg.Paths.UsedTopics, sources...)
	if cfg.Research.StoryLookbackDays > 0 {
		s.lookback = time.Duration(cfg.Research.StoryLookbackDays) * 24 * time.Hour
	}
	if cfg.Research.MaxPrompts > 0 {
		s.max = cfg.Research.MaxPrompts
	}
	return s
}

// NewWithSources is used by tests and callers with custom sources.
// An empty usedPath keeps the dedup set in memory only.
func NewWithSources(usedPath string, sources ...Source) *Scraper {
	return &Scraper{
		sources:  sources,
		lookback: 7 * 24 * time.Hour,
		max:      5,
		usedPath: usedPath,
		used:     loadUsed(usedPath),
		now:      time.Now,
	}
}

// Run fetches, scores, deduplicates and returns the best unused topics,
// best first. Nothing is marked used; call MarkUsed on the topic consumed.
func (s *Scraper) Run(ctx context.Context) ([]types.Topic, error) {
	log.Println("[research] Collecting topics...")

	var candidates []types.Topic
	for _, src := range s.sources {
		topics, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[research] %s warning: %v", src.Name(), err)
			continue
		}
		log.Printf("[research] %s: found %d topics", src.Name(), len(topics))
		candidates = append(candidates, topics...)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no topics found from any source")
	}

	cutoff := s.now().Add(-s.lookback)
	seen := make(map[string]bool)
	var fresh []types.Topic
	for _, t := range candidates {
		if s.used[t.ID] || seen[t.ID] || strings.TrimSpace(t.Title) == "" {
			continue
		}
		if !t.PublishedAt.IsZero() && t.PublishedAt.Before(cutoff) {
			continue
		}
		seen[t.ID] = true
		t.Score = s.score(t)
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("all candidate topics have been used already")
	}

	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Score > fresh[j].Score })
	if len(fresh) > s.max {
		fresh = fresh[:s.max]
	}
	for _, t := range fresh {
		log.Printf("[research] Candidate %q (score: %d)", t.Title, t.Score)
	}
	return fresh, nil
}

// MarkUsed records a topic as turned into a video and persists the log
func (s *Scraper) MarkUsed(t types.Topic) error {
	s.used[t.ID] = true
	log.Printf("[research] ✅ Selected %q (score: %d)", t.Title, t.Score)
	return s.saveUsed()
}

// score adds keyword and recency bonuses to the source score
func (s *Scraper) score(t types.Topic) int {
	score := t.Score
	text := strings.ToLower(t.Title + " " + t.Summary)
	for _, kw := range hookKeywords {
		if strings.Contains(text, kw) {
			score += 50
		}
	}
	if !t.PublishedAt.IsZero() && s.now().Sub(t.PublishedAt) < 72*time.Hour {
		score += 200
	}
	if len(t.Summary) > 200 {
		score += 75
	}
	return score
}

// Prompt turns a topic into a generation prompt
func Prompt(t types.Topic) string {
	title := strings.TrimSpace(t.Title)
	summary := strings.TrimSpace(t.Summary)
	if summary == "" || strings.EqualFold(summary, title) {
		return title
	}
	if len(summary) > 300 {
		summary = strings.TrimSpace(summary[:300]) + "..."
	}
	return title + ". " + summary
}

func loadUsed(path string) map[string]bool {
	used := make(map[string]bool)
	if path == "" {
		return used
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return used
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return used
	}
	for _, id := range ids {
		used[id] = true
	}
	return used
}

func (s *Scraper) saveUsed() error {
	if s.usedPath == "" {
		return nil
	}
	ids := make([]string, 0, len(s.used))
	for id := range s.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.usedPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.usedPath, data, 0644)
}
