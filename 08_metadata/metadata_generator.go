package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	script "prompt-video-pipeline/02_script"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

const metadataSystemPrompt = `You are a YouTube SEO strategist for short narrated videos.
Generate metadata that is honest about the content and maximizes click-through rate.

You MUST respond with ONLY valid JSON. No markdown, no explanation, no preamble.

The JSON must have exactly these fields:
- "title": string (max 70 chars, hook style)
- "description": string (150-300 words, includes a call to subscribe and a question for the comments)
- "tags": array of 20 strings (mix of broad and specific tags)`

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "with": true, "about": true, "is": true, "are": true,
	"how": true, "what": true, "why": true, "this": true, "that": true, "from": true, "at": true,
	"by": true, "it": true, "its": true, "be": true, "as": true, "into": true,
}

// Generator creates publish metadata. The hosted link is optional; without
// it, or when it fails, metadata is derived from the request and plan.
type Generator struct {
	link       script.Link
	titleMax   int
	tagsCount  int
	categoryID string
	visibility string
	now        func() time.Time
}

// New creates a metadata Generator that asks Groq when a key is configured
func New(cfg *config.Config) *Generator {
	var link script.Link
	if cfg.Script.GroqAPIKey != "" {
		link = script.NewGroqLink(cfg.Script.GroqAPIKey, cfg.Script.GroqModel, 0.8, 30*time.Second)
	}
	return NewWithLink(link, cfg.Metadata, cfg.Upload.Visibility)
}

func NewWithLink(link script.Link, mc config.MetadataConfig, visibility string) *Generator {
	if mc.TitleMaxChars <= 3 {
		mc.TitleMaxChars = 100
	}
	if mc.TagsCount <= 0 {
		mc.TagsCount = 15
	}
	if visibility == "" {
		visibility = "private"
	}
	return &Generator{
		link:       link,
		titleMax:   mc.TitleMaxChars,
		tagsCount:  mc.TagsCount,
		categoryID: mc.YouTubeCategoryID,
		visibility: visibility,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for scheduling
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

type metadataJSON struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Run generates the publish metadata for an assembled video
func (g *Generator) Run(ctx context.Context, req types.GenerationRequest, plan types.ScriptPlan) (*types.VideoMetadata, error) {
	raw := g.local(req, plan)

	if g.link != nil {
		log.Printf("[metadata] Generating metadata via %s...", g.link.Name())
		hosted, err := g.hosted(ctx, req, plan)
		switch {
		case err == nil:
			raw = mergeMetadata(hosted, raw)
		case ctx.Err() != nil:
			return nil, types.Wrap(types.KindCancelled, "metadata", ctx.Err())
		default:
			log.Printf("[metadata] ⚠️  %s failed, using local metadata: %v", g.link.Name(), err)
		}
	}

	tags := uniqueTags(raw.Tags)
	if len(tags) > g.tagsCount {
		tags = tags[:g.tagsCount]
	}

	md := &types.VideoMetadata{
		Title:            clampTitle(raw.Title, g.titleMax),
		Description:      raw.Description,
		Tags:             tags,
		CategoryID:       g.categoryID,
		Visibility:       g.visibility,
		ScheduledTimeUTC: nextUploadTime(g.now()),
	}

	log.Printf("[metadata] ✅ Title: %q", md.Title)
	log.Printf("[metadata] Tags: %d generated", len(md.Tags))
	return md, nil
}

func (g *Generator) hosted(ctx context.Context, req types.GenerationRequest, plan types.ScriptPlan) (metadataJSON, error) {
	var out metadataJSON
	content, err := g.link.Attempt(ctx, metadataSystemPrompt, buildMetadataPrompt(req, plan))
	if err != nil {
		return out, err
	}
	content = cleanJSON(content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return out, fmt.Errorf("parse metadata JSON: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" {
		return out, fmt.Errorf("metadata JSON has no title")
	}
	return out, nil
}

// local derives metadata from the prompt and the narration
func (g *Generator) local(req types.GenerationRequest, plan types.ScriptPlan) metadataJSON {
	title := firstSentence(req.Prompt)
	if title != "" {
		r := []rune(title)
		r[0] = unicode.ToUpper(r[0])
		title = string(r)
	}

	var sb strings.Builder
	if narration := plan.Narration(); narration != "" {
		sb.WriteString(narration)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Subscribe for more short videos like this one.\n")
	sb.WriteString("What should the next video be about? Tell us in the comments.\n\n")
	sb.WriteString("#shorts")

	tags := keywords(req.Prompt)
	if req.Style != "" {
		tags = append(tags, strings.ToLower(req.Style))
	}
	tags = append(tags, "shorts", "ai video")

	return metadataJSON{Title: title, Description: sb.String(), Tags: tags}
}

func buildMetadataPrompt(req types.GenerationRequest, plan types.ScriptPlan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate %s metadata for this %s-style video.\n\n", req.Platform, req.Style))
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n", req.Prompt))
	sb.WriteString(fmt.Sprintf("LANGUAGE: %s\n", req.Language))
	sb.WriteString(fmt.Sprintf("TOTAL VIDEO DURATION: %.0f seconds\n\n", plan.TotalSec()))
	sb.WriteString("NARRATION:\n")
	sb.WriteString(truncate(plan.Narration(), 1500))
	sb.WriteString("\n\nRespond ONLY with valid JSON.")
	return sb.String()
}

// mergeMetadata fills what the hosted answer left empty
func mergeMetadata(hosted, local metadataJSON) metadataJSON {
	if strings.TrimSpace(hosted.Description) == "" {
		hosted.Description = local.Description
	}
	if len(hosted.Tags) == 0 {
		hosted.Tags = local.Tags
	}
	return hosted
}

func clampTitle(title string, limit int) string {
	title = strings.Join(strings.Fields(title), " ")
	r := []rune(title)
	if len(r) <= limit {
		return title
	}
	return strings.TrimSpace(string(r[:limit-3])) + "..."
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func keywords(text string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// nextUploadTime returns the next Tuesday or Friday at 2PM New York time, in UTC
func nextUploadTime(now time.Time) string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	now = now.In(loc)

	for i := 1; i <= 7; i++ {
		candidate := now.AddDate(0, 0, i)
		wd := candidate.Weekday()
		if wd == time.Tuesday || wd == time.Friday {
			upload := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 14, 0, 0, 0, loc)
			return upload.UTC().Format(time.RFC3339)
		}
	}
	return now.UTC().Add(48 * time.Hour).Format(time.RFC3339)
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
