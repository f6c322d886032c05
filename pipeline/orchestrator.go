package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	render "prompt-video-pipeline/07_render"
	storage "prompt-video-pipeline/06_storage"
	"prompt-video-pipeline/events"
	"prompt-video-pipeline/ratelimit"
	"prompt-video-pipeline/types"
)

// Stage names reported in events and in PipelineResult.Stage
const (
	StageValidating   = "validating"
	StagePlanning     = "planning"
	StageSynthesizing = "synthesizing"
	StageCaptioning   = "captioning"
	StageImaging      = "imaging"
	StageUploading    = "uploading"
	StageAssembling   = "assembling"
	StageDone         = "done"
	StageCancelled    = "cancelled"
)

type Planner interface {
	Plan(ctx context.Context, req types.GenerationRequest) (types.ScriptPlan, error)
}

type Synthesizer interface {
	SynthesizeWithFallback(ctx context.Context, text, language, gender, provider string) (types.AudioArtifact, error)
}

type Captioner interface {
	Transcribe(ctx context.Context, audioURL, language string, speakerLabels bool) (types.CaptionSet, error)
}

type ImageGenerator interface {
	GenerateMany(ctx context.Context, prompts []string, model string) []types.ImageResult
}

type Uploader interface {
	UploadAudio(ctx context.Context, localPath, folder string) types.UploadResult
	UploadMany(ctx context.Context, items []storage.Item, folder string) []types.UploadResult
}

type Assembler interface {
	Assemble(ctx context.Context, spec render.Spec) (string, error)
}

// Deps are the collaborators of one Orchestrator. Assembler, Limiter and
// Reporter are optional.
type Deps struct {
	Planner     Planner
	Synthesizer Synthesizer
	Captioner   Captioner
	Images      ImageGenerator
	Uploader    Uploader
	Assembler   Assembler
	Limiter     ratelimit.Limiter
	Reporter    events.Reporter
}

type Options struct {
	TTSProvider string
	AudioFolder string
	ImageFolder string
	// ImageModel is used when the request names none
	ImageModel string
	// CaptionLanguage overrides the request language for transcription;
	// "auto" asks the provider to detect it
	CaptionLanguage string
	SpeakerLabels   bool
	Assemble      bool
	VideoDir      string
	Width         int
	Height        int
	FPS           int
}

// Orchestrator runs prompt → plan → speech → captions → images → uploads
type Orchestrator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.AudioFolder == "" {
		opts.AudioFolder = "audio"
	}
	if opts.ImageFolder == "" {
		opts.ImageFolder = "images"
	}
	if opts.VideoDir == "" {
		opts.VideoDir = "output/videos"
	}
	if deps.Reporter == nil {
		deps.Reporter = events.LogReporter{}
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// run is the accumulator threaded through the stages
type run struct {
	req      types.GenerationRequest
	result   types.PipelineResult
	captions types.CaptionSet
	images   []types.ImageResult
	// scene index of each uploaded image URL
	uploaded []int
}

type stage struct {
	name     string
	progress int
	fn       func(ctx context.Context, r run) (run, error)
}

func (o *Orchestrator) stages() []stage {
	s := []stage{
		{StagePlanning, 10, o.plan},
		{StageSynthesizing, 30, o.synthesize},
		{StageCaptioning, 50, o.caption},
		{StageImaging, 70, o.generateImages},
		{StageUploading, 90, o.uploadImages},
	}
	if o.opts.Assemble && o.deps.Assembler != nil {
		s = append(s, stage{StageAssembling, 95, o.assemble})
	}
	return s
}

// Run executes one generation. The result always carries whatever earlier
// stages produced, even when a later stage fails or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, req types.GenerationRequest) types.PipelineResult {
	r := run{req: req.WithDefaults()}
	r.result = types.PipelineResult{RunID: uuid.NewString()[:8], ImageURLs: []string{}}

	if err := r.req.Validate(); err != nil {
		return o.fail(ctx, r, StageValidating, err)
	}
	if err := o.admit(ctx, r.req.CallerID); err != nil {
		return o.fail(ctx, r, StageValidating, err)
	}

	log.Printf("[pipeline] Run %s: %q (%s, %s/%s)", r.result.RunID, r.req.Prompt, r.req.Duration, r.req.Language, r.req.Gender)

	var err error
	for _, s := range o.stages() {
		if cerr := ctx.Err(); cerr != nil {
			return o.fail(ctx, r, s.name, types.Wrap(types.KindCancelled, s.name, cerr))
		}
		o.report(ctx, r, s.name, s.progress, "")
		r, err = s.fn(ctx, r)
		if err == nil {
			continue
		}
		if s.name == StageAssembling && types.KindOf(err) != types.KindCancelled {
			// the uploaded assets are still a usable result
			log.Printf("[pipeline] ⚠️  Assembly failed: %v", err)
			r.result.Err = err
			r.result.Error = err.Error()
			break
		}
		return o.fail(ctx, r, s.name, err)
	}

	r.result.Success = true
	r.result.Stage = StageDone
	r.result.Message = successMessage(r)
	o.report(ctx, r, StageDone, 100, r.result.Message)
	log.Printf("[pipeline] ✅ Run %s complete: %s", r.result.RunID, r.result.Message)
	return r.result
}

func (o *Orchestrator) admit(ctx context.Context, caller string) error {
	if o.deps.Limiter == nil {
		return nil
	}
	if caller == "" {
		caller = "anonymous"
	}
	d, err := o.deps.Limiter.Allow(ctx, caller)
	if err != nil {
		// limiter outages do not block generation
		log.Printf("[pipeline] ⚠️  rate limiter unavailable: %v", err)
		return nil
	}
	if !d.Allowed {
		return types.Errorf(types.KindRateLimited, "rate limit", "too many requests, retry after %s", d.RetryAfter.Round(time.Second))
	}
	return nil
}

func (o *Orchestrator) plan(ctx context.Context, r run) (run, error) {
	plan, err := o.deps.Planner.Plan(ctx, r.req)
	if err != nil {
		return r, types.Wrap(types.KindUpstream, StagePlanning, err)
	}
	r.result.Plan = &plan
	return r, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r run) (run, error) {
	narration := r.result.Plan.Narration()
	artifact, err := o.deps.Synthesizer.SynthesizeWithFallback(ctx, narration, r.req.Language, r.req.Gender, o.opts.TTSProvider)
	if err != nil {
		return r, types.Wrap(types.KindUpstream, StageSynthesizing, err)
	}
	r.result.Audio = &artifact

	up := o.deps.Uploader.UploadAudio(ctx, artifact.LocalPath, o.opts.AudioFolder)
	if !up.Success {
		return r, types.Wrap(types.KindStorage, "upload audio", up.Err)
	}
	artifact.URL = up.URL
	artifact.Storage = types.StorageLocal
	if up.Provider != types.StorageLocal && types.IsRemoteURL(up.URL) {
		artifact.Storage = types.StorageRemote
	}
	r.result.Audio = &artifact
	r.result.AudioURL = up.URL
	return r, nil
}

func (o *Orchestrator) caption(ctx context.Context, r run) (run, error) {
	lang := r.req.Language
	if o.opts.CaptionLanguage != "" {
		lang = o.opts.CaptionLanguage
	}
	set, err := o.deps.Captioner.Transcribe(ctx, r.result.AudioURL, lang, o.opts.SpeakerLabels)
	if err != nil {
		return r, types.Wrap(types.KindUpstream, StageCaptioning, err)
	}
	r.captions = set
	if a := r.result.Audio; a != nil && a.DurationSec == 0 {
		// ffprobe missing; the transcript knows how long the audio is
		a.DurationSec = set.DurationSec
	}
	r.result.Captions = &types.Captions{SRT: set.SRT, VTT: set.VTT}
	return r, nil
}

func (o *Orchestrator) generateImages(ctx context.Context, r run) (run, error) {
	prompts := r.result.Plan.ImagePrompts()
	model := r.req.ImageModel
	if model == "" {
		model = o.opts.ImageModel
	}
	r.images = o.deps.Images.GenerateMany(ctx, prompts, model)
	if err := ctx.Err(); err != nil {
		return r, types.Wrap(types.KindCancelled, StageImaging, err)
	}
	ok := 0
	var lastErr error
	for _, img := range r.images {
		if img.Success {
			ok++
		} else if img.Err != nil {
			lastErr = img.Err
		}
	}
	if ok == 0 {
		return r, &types.Error{Kind: types.KindUpstream, Op: StageImaging, Msg: fmt.Sprintf("all %d images failed", len(prompts)), Err: lastErr}
	}
	return r, nil
}

func (o *Orchestrator) uploadImages(ctx context.Context, r run) (run, error) {
	var items []storage.Item
	var scenes []int
	for i, img := range r.images {
		if !img.Success {
			continue
		}
		items = append(items, storage.Item{
			Data:        img.Data,
			Name:        fmt.Sprintf("%s-scene-%02d", r.result.RunID, i+1),
			ContentType: img.ContentType,
		})
		scenes = append(scenes, i)
	}

	results := o.deps.Uploader.UploadMany(ctx, items, o.opts.ImageFolder)
	var lastErr error
	for j, res := range results {
		if res.Success {
			r.result.ImageURLs = append(r.result.ImageURLs, res.URL)
			r.uploaded = append(r.uploaded, scenes[j])
		} else {
			lastErr = res.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return r, types.Wrap(types.KindCancelled, StageUploading, err)
	}
	if len(r.result.ImageURLs) == 0 {
		return r, &types.Error{Kind: types.KindStorage, Op: StageUploading, Msg: "no images uploaded", Err: lastErr}
	}
	return r, nil
}

func (o *Orchestrator) assemble(ctx context.Context, r run) (run, error) {
	scenes := r.result.Plan.Scenes
	images := make([]render.Image, len(r.result.ImageURLs))
	for j, u := range r.result.ImageURLs {
		images[j] = render.Image{URL: u, Duration: scenes[r.uploaded[j]].Duration}
	}
	out, err := o.deps.Assembler.Assemble(ctx, render.Spec{
		AudioURL:   r.result.AudioURL,
		Images:     images,
		OutputPath: filepath.Join(o.opts.VideoDir, r.result.RunID+".mp4"),
		Width:      o.opts.Width,
		Height:     o.opts.Height,
		FPS:        o.opts.FPS,
		SRT:        r.captions.SRT,
	})
	if err != nil {
		return r, types.Wrap(types.KindAssembly, StageAssembling, err)
	}
	r.result.VideoPath = out
	return r, nil
}

func (o *Orchestrator) fail(ctx context.Context, r run, stage string, err error) types.PipelineResult {
	if ctx.Err() != nil && types.KindOf(err) != types.KindCancelled {
		err = types.Wrap(types.KindCancelled, stage, ctx.Err())
	}
	r.result.Success = false
	r.result.Stage = stage
	r.result.Err = err
	r.result.Error = err.Error()
	r.result.Message = failureMessage(r.result, stage, err)

	reportStage := stage
	if types.KindOf(err) == types.KindCancelled {
		reportStage = StageCancelled
		log.Printf("[pipeline] ⚠️  Run %s cancelled during %s", r.result.RunID, stage)
	} else {
		log.Printf("[pipeline] ❌ Run %s failed during %s: %v", r.result.RunID, stage, err)
	}
	// report on a fresh context so a cancelled run still announces itself
	o.report(context.WithoutCancel(ctx), r, reportStage, -1, r.result.Message)
	return r.result
}

func (o *Orchestrator) report(ctx context.Context, r run, stage string, progress int, msg string) {
	o.deps.Reporter.Report(ctx, events.Event{
		RunID:    r.result.RunID,
		Stage:    stage,
		Progress: progress,
		Message:  msg,
		At:       time.Now().UTC(),
	})
}

func successMessage(r run) string {
	total := 0
	if r.result.Plan != nil {
		total = len(r.result.Plan.Scenes)
	}
	msg := fmt.Sprintf("Generated script, audio, captions and %d/%d images", len(r.result.ImageURLs), total)
	switch {
	case r.result.VideoPath != "":
		msg += "; video assembled"
	case r.result.Err != nil:
		msg += "; video assembly failed"
	}
	return msg
}

func failureMessage(res types.PipelineResult, stage string, err error) string {
	var have []string
	if res.Plan != nil {
		have = append(have, "script")
	}
	if res.Audio != nil {
		have = append(have, "audio")
	}
	if res.Captions != nil {
		have = append(have, "captions")
	}
	if len(res.ImageURLs) > 0 {
		have = append(have, "images")
	}

	verb := "Failed"
	switch types.KindOf(err) {
	case types.KindCancelled:
		verb = "Cancelled"
	case types.KindRateLimited:
		return "Rate limit exceeded: " + err.Error()
	case types.KindValidation:
		return "Invalid request: " + err.Error()
	}
	if len(have) == 0 {
		return fmt.Sprintf("%s during %s; no usable output", verb, stage)
	}
	return fmt.Sprintf("%s during %s; usable output: %s", verb, stage, strings.Join(have, ", "))
}
