package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

const systemPrompt = `You are an expert short-form video writer. You plan narrated videos as a sequence of timed scenes, each with a still image.

You MUST respond with ONLY valid JSON. No preamble, no markdown, no code fences, no explanation.

The JSON object has exactly two top-level fields:
- "script": the complete narration as one continuous text
- "scenes": an array of objects, each with
  - "sceneNumber": integer starting at 1
  - "duration": seconds this scene stays on screen
  - "imagePrompt": a detailed image generation prompt (style, composition, lighting, mood)
  - "narration": the exact words spoken during this scene`

// Link is one step of the planning fallback chain
type Link interface {
	Name() string
	Attempt(ctx context.Context, system, prompt string) (string, error)
}

// Planner turns a request into a ScriptPlan. It walks its links in order and
// ends with the local generator, so it only fails on cancellation.
type Planner struct {
	links   []Link
	timeout time.Duration
}

// New builds the chain from config. Links without credentials are skipped.
func New(cfg *config.Config) *Planner {
	var links []Link
	sc := cfg.Script
	for _, name := range sc.Links {
		switch name {
		case "groq":
			if sc.GroqAPIKey != "" {
				links = append(links, NewGroqLink(sc.GroqAPIKey, sc.GroqModel, sc.Temperature, sc.Timeout))
			}
		case "gemini":
			if sc.GeminiKey != "" {
				links = append(links, NewGeminiLink(sc.GeminiKey, sc.GeminiModel, sc.Temperature, sc.Timeout))
			}
		case "huggingface":
			if sc.HFAPIKey != "" {
				for _, model := range sc.HFModels {
					links = append(links, NewHFLink(sc.HFAPIKey, model, sc.Temperature, sc.Timeout))
				}
			}
		default:
			log.Printf("[script] Unknown planner link %q, skipping", name)
		}
	}
	return NewWithLinks(links...).WithLinkTimeout(sc.Timeout)
}

func NewWithLinks(links ...Link) *Planner {
	return &Planner{links: links, timeout: 60 * time.Second}
}

// WithLinkTimeout bounds each hosted attempt so a hung link still falls
// through to the next one
func (p *Planner) WithLinkTimeout(d time.Duration) *Planner {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// Links returns the names of the hosted links in order
func (p *Planner) Links() []string {
	names := make([]string, len(p.links))
	for i, l := range p.links {
		names[i] = l.Name()
	}
	return names
}

// Plan always yields SceneCount(req.Duration) scenes numbered 1..N
func (p *Planner) Plan(ctx context.Context, req types.GenerationRequest) (types.ScriptPlan, error) {
	n := SceneCount(req.Duration)
	userPrompt := buildUserPrompt(req, n)

	for _, link := range p.links {
		if err := ctx.Err(); err != nil {
			return types.ScriptPlan{}, types.Wrap(types.KindCancelled, "plan", err)
		}
		log.Printf("[script] Generating plan via %s...", link.Name())
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		raw, err := link.Attempt(attemptCtx, systemPrompt, userPrompt)
		cancel()
		if err != nil {
			log.Printf("[script] ⚠️  %s failed: %v", link.Name(), err)
			continue
		}
		plan, err := parsePlan(raw)
		if err != nil {
			log.Printf("[script] ⚠️  %s returned an unusable plan: %v", link.Name(), err)
			continue
		}
		plan = normalize(plan, req, n)
		plan.Source = link.Name()
		log.Printf("[script] ✅ Plan ready from %s: %d scenes, ~%.0f seconds", plan.Source, len(plan.Scenes), plan.TotalSec())
		return plan, nil
	}

	if err := ctx.Err(); err != nil {
		return types.ScriptPlan{}, types.Wrap(types.KindCancelled, "plan", err)
	}
	log.Println("[script] All hosted models failed, using local plan")
	return Fallback(req.Prompt, req.Style, req.Duration), nil
}

// SceneCount maps a duration bucket to its scene count
func SceneCount(duration string) int {
	switch duration {
	case types.Duration15s:
		return 3
	case types.Duration30s:
		return 5
	case types.Duration60s:
		return 10
	default:
		return 5
	}
}

// BucketSeconds is the nominal length of a duration bucket
func BucketSeconds(duration string) float64 {
	if secs, err := strconv.Atoi(strings.TrimSuffix(duration, "s")); err == nil && secs > 0 {
		return float64(secs)
	}
	return 30
}

func buildUserPrompt(req types.GenerationRequest, n int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate a complete video plan for a %s video.\n\n", req.Duration))
	sb.WriteString(fmt.Sprintf("USER REQUEST: %s\n", req.Prompt))
	sb.WriteString(fmt.Sprintf("PLATFORM: %s\n", req.Platform))
	sb.WriteString(fmt.Sprintf("VIDEO STYLE: %s\n", req.Style))
	sb.WriteString(fmt.Sprintf("NUMBER OF SCENES: %d\n", n))
	sb.WriteString(fmt.Sprintf("LANGUAGE: %s\n\n", req.Language))
	sb.WriteString(fmt.Sprintf("Scene durations should add up to approximately %.0f seconds.\n", BucketSeconds(req.Duration)))
	sb.WriteString(fmt.Sprintf("Image prompts must be highly detailed and specific to the %s style.\n", req.Style))
	sb.WriteString("Write the narration in the requested language.\n\n")
	sb.WriteString(`Respond ONLY with: {"script": "...", "scenes": [{"sceneNumber": 1, "duration": 3, "imagePrompt": "...", "narration": "..."}]}`)
	return sb.String()
}

// planJSON is the raw structure returned by a model
type planJSON struct {
	Script string      `json:"script"`
	Scenes []sceneJSON `json:"scenes"`
}

type sceneJSON struct {
	SceneNumber flexFloat `json:"sceneNumber"`
	Duration    flexFloat `json:"duration"`
	ImagePrompt string    `json:"imagePrompt"`
	Narration   string    `json:"narration"`
}

// flexFloat accepts 5, 5.5, "5" and "5s"
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.TrimSuffix(strings.TrimSpace(s), "s")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

func parsePlan(raw string) (types.ScriptPlan, error) {
	content := extractObject(cleanJSON(raw))
	var pj planJSON
	if err := json.Unmarshal([]byte(content), &pj); err != nil {
		return types.ScriptPlan{}, fmt.Errorf("parse plan JSON: %w (raw: %s)", err, truncate(content, 200))
	}
	if strings.TrimSpace(pj.Script) == "" {
		return types.ScriptPlan{}, fmt.Errorf("plan has no script")
	}
	if len(pj.Scenes) == 0 {
		return types.ScriptPlan{}, fmt.Errorf("plan has no scenes")
	}

	plan := types.ScriptPlan{Script: strings.TrimSpace(pj.Script)}
	for _, s := range pj.Scenes {
		plan.Scenes = append(plan.Scenes, types.Scene{
			Number:      int(s.SceneNumber),
			Duration:    float64(s.Duration),
			ImagePrompt: strings.TrimSpace(s.ImagePrompt),
			Narration:   strings.TrimSpace(s.Narration),
		})
	}
	return plan, nil
}

// normalize sorts by reported number, renumbers 1..n, trims or pads to n
// scenes and fills missing durations and prompts.
func normalize(plan types.ScriptPlan, req types.GenerationRequest, n int) types.ScriptPlan {
	sort.SliceStable(plan.Scenes, func(i, j int) bool {
		return plan.Scenes[i].Number < plan.Scenes[j].Number
	})
	if len(plan.Scenes) > n {
		plan.Scenes = plan.Scenes[:n]
	}
	filler := Fallback(req.Prompt, req.Style, req.Duration).Scenes
	for len(plan.Scenes) < n {
		plan.Scenes = append(plan.Scenes, filler[len(plan.Scenes)])
	}

	perScene := BucketSeconds(req.Duration) / float64(n)
	for i := range plan.Scenes {
		s := &plan.Scenes[i]
		s.Number = i + 1
		if s.Duration <= 0 {
			s.Duration = perScene
		}
		if s.ImagePrompt == "" {
			s.ImagePrompt = filler[i].ImagePrompt
		} else if req.Style != "" && !strings.Contains(strings.ToLower(s.ImagePrompt), strings.ToLower(req.Style)) {
			s.ImagePrompt = fmt.Sprintf("%s style, %s", req.Style, s.ImagePrompt)
		}
		if s.Narration == "" {
			s.Narration = filler[i].Narration
		}
	}
	if plan.Script == "" {
		plan.Script = plan.Narration()
	}
	return plan
}

// cleanJSON strips markdown fences if a model wraps its response in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject drops any prose around the outermost JSON object
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
