package metadata_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	script "prompt-video-pipeline/02_script"
	metadata "prompt-video-pipeline/08_metadata"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

type stubLink struct {
	out   string
	err   error
	calls int
}

func (s *stubLink) Name() string { return "stub" }

func (s *stubLink) Attempt(ctx context.Context, system, prompt string) (string, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.out, s.err
}

func fixture() (types.GenerationRequest, types.ScriptPlan) {
	req := types.GenerationRequest{Prompt: "the history of coffee in Yemen. Told briefly"}.WithDefaults()
	plan := script.Fallback(req.Prompt, req.Style, req.Duration)
	return req, plan
}

func mc() config.MetadataConfig {
	return config.MetadataConfig{TitleMaxChars: 20, TagsCount: 4, YouTubeCategoryID: "27"}
}

// Wednesday 2024-01-10 12:00 UTC
var wednesday = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func TestRun_LocalMetadata(t *testing.T) {
	req, plan := fixture()
	g := metadata.NewWithLink(nil, mc(), "").WithClock(func() time.Time { return wednesday })

	md, err := g.Run(context.Background(), req, plan)
	require.NoError(t, err)

	assert.Equal(t, "The history of co...", md.Title)
	assert.LessOrEqual(t, len([]rune(md.Title)), 20)
	assert.Equal(t, []string{"history", "coffee", "yemen", "told"}, md.Tags)
	assert.Equal(t, "27", md.CategoryID)
	assert.Equal(t, "private", md.Visibility)
	assert.Contains(t, md.Description, plan.Narration())
	// next Friday 14:00 New York is 19:00 UTC in winter
	assert.Equal(t, "2024-01-12T19:00:00Z", md.ScheduledTimeUTC)
}

func TestRun_HostedMetadata(t *testing.T) {
	req, plan := fixture()
	link := &stubLink{out: "```json\n{\"title\":\"Coffee\",\"description\":\"\",\"tags\":[\"#coffee\",\"Coffee\",\"yemen\"]}\n```"}
	g := metadata.NewWithLink(link, mc(), "public")

	md, err := g.Run(context.Background(), req, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, link.calls)
	assert.Equal(t, "Coffee", md.Title)
	assert.Equal(t, []string{"coffee", "yemen"}, md.Tags)
	assert.Equal(t, "public", md.Visibility)
	assert.True(t, strings.HasSuffix(md.Description, "#shorts"))
}

func TestRun_HostedFailureFallsBack(t *testing.T) {
	req, plan := fixture()
	for _, link := range []*stubLink{
		{err: errors.New("503")},
		{out: "not json"},
		{out: `{"title":"  "}`},
	} {
		md, err := metadata.NewWithLink(link, mc(), "").Run(context.Background(), req, plan)
		require.NoError(t, err)
		assert.Equal(t, "The history of co...", md.Title)
	}
}

func TestRun_Cancelled(t *testing.T) {
	req, plan := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := metadata.NewWithLink(&stubLink{}, mc(), "").Run(ctx, req, plan)
	assert.ErrorIs(t, err, types.ErrCancelled)
}

func TestNew_WithoutKeyIsLocal(t *testing.T) {
	req, plan := fixture()
	cfg := config.Default()
	cfg.Script.GroqAPIKey = ""

	md, err := metadata.New(cfg).Run(context.Background(), req, plan)
	require.NoError(t, err)
	assert.Equal(t, "The history of coffee in Yemen", md.Title)
	assert.Equal(t, "22", md.CategoryID)
	assert.Len(t, md.Tags, 8)
}
