package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	script "prompt-video-pipeline/02_script"
	subtitles "prompt-video-pipeline/05_subtitles"
	storage "prompt-video-pipeline/06_storage"
	render "prompt-video-pipeline/07_render"
	"prompt-video-pipeline/config"
	"prompt-video-pipeline/events"
	"prompt-video-pipeline/pipeline"
	"prompt-video-pipeline/ratelimit"
	"prompt-video-pipeline/types"
)

// ---- fakes ----

type fakeSynth struct {
	dir         string
	err         error
	calls       int
	durationSec float64
}

func (f *fakeSynth) SynthesizeWithFallback(ctx context.Context, text, language, gender, provider string) (types.AudioArtifact, error) {
	f.calls++
	if f.err != nil {
		return types.AudioArtifact{}, f.err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("speech-%d.mp3", f.calls))
	if err := os.WriteFile(path, []byte("ID3 "+text), 0644); err != nil {
		return types.AudioArtifact{}, err
	}
	return types.AudioArtifact{LocalPath: path, Provider: "edge", Voice: "en-US-JennyNeural", Storage: types.StorageLocal, DurationSec: f.durationSec}, nil
}

type fakeCaptioner struct {
	err         error
	onCall      func()
	audioURL    string
	language    string
	durationSec float64
}

func (f *fakeCaptioner) Transcribe(ctx context.Context, audioURL, language string, speakerLabels bool) (types.CaptionSet, error) {
	f.audioURL = audioURL
	f.language = language
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return types.CaptionSet{}, f.err
	}
	if err := ctx.Err(); err != nil {
		return types.CaptionSet{}, types.Wrap(types.KindCancelled, "transcribe", err)
	}
	words := []types.Caption{{Text: "Welcome", StartMs: 0, EndMs: 400}, {Text: "friends", StartMs: 450, EndMs: 900}}
	return types.CaptionSet{
		TranscriptID: "tr_1",
		Words:        words,
		SRT:          subtitles.BuildSRT(words, 8),
		VTT:          subtitles.BuildVTT(words, 8),
		WordCount:    2,
		DurationSec:  f.durationSec,
	}, nil
}

type fakeImages struct {
	png     []byte
	failAll bool
	failIdx map[int]bool
	prompts []string
	model   string
}

func (f *fakeImages) GenerateMany(ctx context.Context, prompts []string, model string) []types.ImageResult {
	f.prompts = prompts
	f.model = model
	out := make([]types.ImageResult, len(prompts))
	for i, p := range prompts {
		out[i] = types.ImageResult{Index: i, Prompt: p}
		if f.failAll || f.failIdx[i] {
			out[i].Err = types.Errorf(types.KindUpstream, "generate image", "model overloaded")
			continue
		}
		out[i].Success = true
		out[i].Data = f.png
		out[i].ContentType = "image/png"
	}
	return out
}

type countingPlanner struct {
	inner *script.Planner
	mu    sync.Mutex
	calls int
}

func (c *countingPlanner) Plan(ctx context.Context, req types.GenerationRequest) (types.ScriptPlan, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Plan(ctx, req)
}

type fakeAssembler struct {
	err  error
	spec render.Spec
}

func (f *fakeAssembler) Assemble(ctx context.Context, spec render.Spec) (string, error) {
	f.spec = spec
	if f.err != nil {
		return "", f.err
	}
	return spec.OutputPath, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), 80, uint8(y * 16), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	planner  *countingPlanner
	synth    *fakeSynth
	captions *fakeCaptioner
	images   *fakeImages
	recorder *events.Recorder
	deps     pipeline.Deps
	storeDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storeDir := t.TempDir()
	provider, err := storage.NewLocalProvider(storeDir, "https://cdn.test")
	require.NoError(t, err)
	uploader := storage.New(provider, storage.Options{MaxAttempts: 1, AttemptTimeout: time.Second, JPEGQuality: 80})

	f := &fixture{
		planner:  &countingPlanner{inner: script.NewWithLinks()},
		synth:    &fakeSynth{dir: t.TempDir()},
		captions: &fakeCaptioner{durationSec: 14.6},
		images:   &fakeImages{png: testPNG(t)},
		recorder: &events.Recorder{},
		storeDir: storeDir,
	}
	f.deps = pipeline.Deps{
		Planner:     f.planner,
		Synthesizer: f.synth,
		Captioner:   f.captions,
		Images:      f.images,
		Uploader:    uploader,
		Reporter:    f.recorder,
	}
	return f
}

func (f *fixture) run(ctx context.Context, opts pipeline.Options, req types.GenerationRequest) types.PipelineResult {
	return pipeline.New(f.deps, opts).Run(ctx, req)
}

// ---- tests ----

func TestRun_FifteenSecondEndToEnd(t *testing.T) {
	f := newFixture(t)

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "city lights", Duration: "15s"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, pipeline.StageDone, res.Stage)
	require.NotNil(t, res.Plan)
	assert.Len(t, res.Plan.Scenes, 3)
	assert.NotEmpty(t, res.Script())
	require.NotNil(t, res.Captions)
	assert.Contains(t, res.Captions.SRT, "-->")
	assert.True(t, strings.HasPrefix(res.Captions.VTT, "WEBVTT"))

	require.Len(t, res.ImageURLs, 3)
	for i, u := range res.ImageURLs {
		assert.True(t, strings.HasPrefix(u, "https://cdn.test/images/"), u)
		assert.True(t, strings.HasSuffix(u, fmt.Sprintf("scene-%02d.jpg", i+1)), u)
	}

	assert.True(t, strings.HasPrefix(res.AudioURL, "https://cdn.test/audio/"))
	assert.Equal(t, res.AudioURL, f.captions.audioURL, "captions use the uploaded audio")
	assert.Equal(t, types.StorageLocal, res.Audio.Storage, "local provider keeps audio on this host")
	assert.InDelta(t, 15, res.Audio.DurationSec, 3, "audio length taken from the transcript")
	assert.NoFileExists(t, res.Audio.LocalPath, "local audio removed after upload")

	assert.Equal(t, res.Plan.ImagePrompts(), f.images.prompts)
	assert.Equal(t, []string{"planning", "synthesizing", "captioning", "imaging", "uploading", "done"}, f.recorder.Stages())
}

// memProvider stands in for a hosted bucket
type memProvider struct {
	mu   sync.Mutex
	keys []string
}

func (m *memProvider) Name() string { return "s3" }

func (m *memProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "https://bucket.test/" + key, nil
}

func TestRun_AudioStorageTag(t *testing.T) {
	t.Run("hosted bucket", func(t *testing.T) {
		f := newFixture(t)
		f.deps.Uploader = storage.New(&memProvider{}, storage.Options{MaxAttempts: 1, AttemptTimeout: time.Second, JPEGQuality: 80})

		res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "tides", Duration: "15s"})

		require.True(t, res.Success, res.Message)
		assert.True(t, strings.HasPrefix(res.AudioURL, "https://bucket.test/"), res.AudioURL)
		assert.Equal(t, types.StorageRemote, res.Audio.Storage)
	})

	t.Run("local dir without public url", func(t *testing.T) {
		f := newFixture(t)
		provider, err := storage.NewLocalProvider(t.TempDir(), "")
		require.NoError(t, err)
		f.deps.Uploader = storage.New(provider, storage.Options{MaxAttempts: 1, AttemptTimeout: time.Second, JPEGQuality: 80})

		res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "tides", Duration: "15s"})

		require.True(t, res.Success, res.Message)
		assert.False(t, types.IsRemoteURL(res.AudioURL), res.AudioURL)
		assert.FileExists(t, res.AudioURL)
		assert.Equal(t, types.StorageLocal, res.Audio.Storage)
	})
}

func TestRun_MeasuredAudioDurationIsKept(t *testing.T) {
	f := newFixture(t)
	f.synth.durationSec = 16.2

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "tides", Duration: "15s"})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 16.2, res.Audio.DurationSec)
}

func TestRun_AllImagesFail(t *testing.T) {
	f := newFixture(t)
	f.images.failAll = true

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "deserts", Duration: "30s"})

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.StageImaging, res.Stage)
	assert.True(t, errors.Is(res.Err, types.ErrUpstream))
	assert.NotEmpty(t, res.Script())
	assert.NotNil(t, res.Audio)
	assert.NotEmpty(t, res.AudioURL)
	require.NotNil(t, res.Captions)
	assert.NotEmpty(t, res.Captions.SRT)
	assert.Empty(t, res.ImageURLs)
	assert.Contains(t, res.Message, "usable output: script, audio, captions")
}

func TestRun_SomeImagesFailKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.images.failIdx = map[int]bool{1: true}
	asm := &fakeAssembler{}
	f.deps.Assembler = asm

	res := f.run(context.Background(), pipeline.Options{Assemble: true, VideoDir: t.TempDir()}, types.GenerationRequest{Prompt: "forests", Duration: "15s"})

	require.True(t, res.Success, res.Message)
	require.Len(t, res.ImageURLs, 2)
	assert.Contains(t, res.ImageURLs[0], "scene-01")
	assert.Contains(t, res.ImageURLs[1], "scene-03")

	require.Len(t, asm.spec.Images, 2)
	assert.Equal(t, res.Plan.Scenes[2].Duration, asm.spec.Images[1].Duration)
	assert.Equal(t, res.AudioURL, asm.spec.AudioURL)
	assert.Contains(t, asm.spec.SRT, "-->")
	assert.Equal(t, asm.spec.OutputPath, res.VideoPath)
}

func TestRun_AssemblyFailureKeepsAssets(t *testing.T) {
	f := newFixture(t)
	f.deps.Assembler = &fakeAssembler{err: types.Errorf(types.KindToolUnavailable, "assemble", "ffmpeg not found")}

	res := f.run(context.Background(), pipeline.Options{Assemble: true}, types.GenerationRequest{Prompt: "rivers", Duration: "15s"})

	assert.True(t, res.Success)
	assert.Equal(t, pipeline.StageDone, res.Stage)
	assert.Len(t, res.ImageURLs, 3)
	assert.Empty(t, res.VideoPath)
	assert.True(t, errors.Is(res.Err, types.ErrAssembly))
	assert.Contains(t, res.Error, "ffmpeg not found")
	assert.Contains(t, res.Message, "video assembly failed")
}

func TestRun_CaptioningFailure(t *testing.T) {
	f := newFixture(t)
	f.captions.err = errors.New("assemblyai down")

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "mountains"})

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.StageCaptioning, res.Stage)
	assert.True(t, errors.Is(res.Err, types.ErrUpstream))
	assert.NotNil(t, res.Plan)
	assert.NotNil(t, res.Audio)
	assert.Nil(t, res.Captions)
	assert.Empty(t, res.ImageURLs)
	assert.Nil(t, f.images.prompts, "imaging never starts")
}

func TestRun_SynthesisFailure(t *testing.T) {
	f := newFixture(t)
	f.synth.err = types.Errorf(types.KindUpstream, "synthesize", "all tts backends failed")

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "mountains"})

	assert.False(t, res.Success)
	assert.Equal(t, pipeline.StageSynthesizing, res.Stage)
	assert.NotNil(t, res.Plan)
	assert.Nil(t, res.Audio)
	assert.Contains(t, res.Message, "usable output: script")
}

func TestRun_CancelledReturnsPartialResult(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.captions.onCall = cancel

	res := f.run(ctx, pipeline.Options{}, types.GenerationRequest{Prompt: "storms", Duration: "15s"})

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, types.ErrCancelled), "%v", res.Err)
	assert.Equal(t, pipeline.StageCaptioning, res.Stage)
	assert.NotNil(t, res.Plan)
	assert.NotEmpty(t, res.AudioURL)
	assert.Nil(t, f.images.prompts)
	assert.Equal(t, "cancelled", f.recorder.Stages()[len(f.recorder.Stages())-1])
	assert.Contains(t, res.Message, "Cancelled during captioning")
}

func TestRun_AlreadyCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.run(ctx, pipeline.Options{}, types.GenerationRequest{Prompt: "storms"})

	assert.True(t, errors.Is(res.Err, types.ErrCancelled))
	assert.Equal(t, pipeline.StagePlanning, res.Stage)
	assert.Equal(t, 0, f.planner.calls)
}

func TestRun_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.deps.Limiter = ratelimit.NewMemory(1, time.Minute)
	req := types.GenerationRequest{Prompt: "lakes", Duration: "15s", CallerID: "user-1"}

	first := f.run(context.Background(), pipeline.Options{}, req)
	second := f.run(context.Background(), pipeline.Options{}, req)

	assert.True(t, first.Success)
	assert.False(t, second.Success)
	assert.True(t, errors.Is(second.Err, types.ErrRateLimited))
	assert.Nil(t, second.Plan)
	assert.Equal(t, 1, f.planner.calls)
	assert.Contains(t, second.Message, "Rate limit exceeded")
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "lakes", Language: "de"})

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, types.ErrValidation))
	assert.Equal(t, pipeline.StageValidating, res.Stage)
	assert.Equal(t, 0, f.planner.calls)
	assert.Equal(t, 0, f.synth.calls)
}

func TestRun_NarrationFollowsSceneOrder(t *testing.T) {
	f := newFixture(t)

	res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "tides", Duration: "15s"})

	require.True(t, res.Success)
	// Fallback narration for 15s is intro, body, outro
	assert.Equal(t, "Welcome to this video about tides Scene 2 provides more information about tides Thank you for watching", res.Plan.Narration())
	total := res.Plan.TotalSec()
	assert.InDelta(t, 15.0, total, 3.0)
}

func TestRun_ConfiguredDefaults(t *testing.T) {
	opts := pipeline.Options{ImageModel: "FLUX_SCHNELL", CaptionLanguage: "auto"}

	t.Run("request leaves model unset", func(t *testing.T) {
		f := newFixture(t)
		res := f.run(context.Background(), opts, types.GenerationRequest{Prompt: "dunes", Duration: "15s", Language: "fr"})

		require.True(t, res.Success, res.Message)
		assert.Equal(t, "FLUX_SCHNELL", f.images.model)
		assert.Equal(t, "auto", f.captions.language)
	})

	t.Run("request model wins", func(t *testing.T) {
		f := newFixture(t)
		res := f.run(context.Background(), opts, types.GenerationRequest{Prompt: "dunes", Duration: "15s", ImageModel: "POLLINATIONS"})

		require.True(t, res.Success, res.Message)
		assert.Equal(t, "POLLINATIONS", f.images.model)
	})

	t.Run("no caption override follows request", func(t *testing.T) {
		f := newFixture(t)
		res := f.run(context.Background(), pipeline.Options{}, types.GenerationRequest{Prompt: "dunes", Duration: "15s", Language: "ar"})

		require.True(t, res.Success, res.Message)
		assert.Equal(t, "ar", f.captions.language)
		assert.Equal(t, "", f.images.model)
	})
}

func TestBuild_FromDefaultConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.LocalDir = t.TempDir()

	o, err := pipeline.Build(context.Background(), cfg, nil)

	require.NoError(t, err)
	assert.NotNil(t, o)

	cfg.RateLimit.Backend = "redis"
	_, err = pipeline.Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
