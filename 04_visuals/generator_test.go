package visuals_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	visuals "prompt-video-pipeline/04_visuals"
	"prompt-video-pipeline/types"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), 100)
	return buf.Bytes()
}

type fakeBackend struct {
	name   string
	data   []byte
	ctype  string
	err    error
	failOn string
	calls  int
	models []string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Generate(ctx context.Context, prompt, model string, opts visuals.Options) ([]byte, string, error) {
	f.calls++
	f.models = append(f.models, model)
	if f.err != nil {
		return nil, "", f.err
	}
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return nil, "", errors.New("refused " + prompt)
	}
	return f.data, f.ctype, nil
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "stabilityai/stable-diffusion-xl-base-1.0", visuals.ResolveModel(""))
	assert.Equal(t, "black-forest-labs/FLUX.1-schnell", visuals.ResolveModel("FLUX_SCHNELL"))
	assert.Equal(t, "Lykon/DreamShaper", visuals.ResolveModel("dreamshaper"))
	assert.Equal(t, "someone/custom-model", visuals.ResolveModel("someone/custom-model"))
}

func TestGenerate_FallsBackToSecondBackend(t *testing.T) {
	img := pngBytes(t)
	hf := &fakeBackend{name: "huggingface", err: errors.New("model loading")}
	poll := &fakeBackend{name: "pollinations", data: img, ctype: "image/jpeg"}
	g := visuals.NewWithBackends(visuals.DefaultOptions(), 0, hf, poll)

	res := g.Generate(context.Background(), "a lighthouse", "SDXL")

	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, img, res.Data)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "pollinations/flux", res.Model)
	assert.Equal(t, []string{"stabilityai/stable-diffusion-xl-base-1.0"}, hf.models)
}

func TestGenerate_RejectsTinyAndNonImageResponses(t *testing.T) {
	tiny := &fakeBackend{name: "tiny", data: []byte("oops"), ctype: "image/png"}
	html := &fakeBackend{name: "html", data: []byte("<html>" + strings.Repeat("x", 200) + "</html>"), ctype: "text/html"}
	g := visuals.NewWithBackends(visuals.DefaultOptions(), 0, tiny, html)

	res := g.Generate(context.Background(), "a lighthouse", "")

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, types.ErrUpstream))
	assert.Contains(t, res.Err.Error(), "too small")
	assert.Contains(t, res.Err.Error(), "text/html")
}

func TestGenerate_SniffsMissingContentType(t *testing.T) {
	g := visuals.NewWithBackends(visuals.DefaultOptions(), 0, &fakeBackend{name: "b", data: pngBytes(t)})

	res := g.Generate(context.Background(), "p", "")

	require.True(t, res.Success)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	b := &fakeBackend{name: "b", data: pngBytes(t)}
	res := visuals.NewWithBackends(visuals.DefaultOptions(), 0, b).Generate(context.Background(), "  ", "")

	assert.True(t, errors.Is(res.Err, types.ErrValidation))
	assert.Equal(t, 0, b.calls)
}

func TestGenerateMany_KeepsOrderAndIsolatesFailures(t *testing.T) {
	b := &fakeBackend{name: "b", data: pngBytes(t), ctype: "image/png", failOn: "two"}
	g := visuals.NewWithBackends(visuals.DefaultOptions(), time.Millisecond, b)

	results := g.GenerateMany(context.Background(), []string{"one", "two", "three"}, "")

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, "two", results[1].Prompt)
}

func TestGenerateMany_CancelledMarksRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &cancellingBackend{cancel: cancel, data: pngBytes(t)}
	g := visuals.NewWithBackends(visuals.DefaultOptions(), 0, b)

	results := g.GenerateMany(ctx, []string{"a", "b", "c", "d"}, "")

	require.Len(t, results, 4)
	assert.True(t, results[0].Success)
	for _, r := range results[1:] {
		assert.False(t, r.Success)
		assert.True(t, errors.Is(r.Err, types.ErrCancelled))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{results[0].Prompt, results[1].Prompt, results[2].Prompt, results[3].Prompt})
	assert.Equal(t, 1, b.calls)
}

// cancellingBackend succeeds once and cancels the run
type cancellingBackend struct {
	cancel context.CancelFunc
	data   []byte
	calls  int
}

func (c *cancellingBackend) Name() string { return "cancelling" }

func (c *cancellingBackend) Generate(ctx context.Context, prompt, model string, opts visuals.Options) ([]byte, string, error) {
	c.calls++
	c.cancel()
	return c.data, "image/png", nil
}

func TestHFBackend_RequestShape(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/stabilityai/stable-diffusion-xl-base-1.0", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))

		var body struct {
			Inputs     string                 `json:"inputs"`
			Parameters map[string]interface{} `json:"parameters"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "misty forest", body.Inputs)
		assert.Equal(t, "blurry, bad quality, distorted, ugly, low resolution", body.Parameters["negative_prompt"])
		assert.Equal(t, 1024.0, body.Parameters["width"])
		assert.Equal(t, 50.0, body.Parameters["num_inference_steps"])
		assert.Equal(t, 7.5, body.Parameters["guidance_scale"])

		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}))
	defer srv.Close()

	g := visuals.NewWithBackends(visuals.DefaultOptions(), 0, visuals.NewHFBackend(srv.URL, "hf-key", time.Second))
	res := g.Generate(context.Background(), "misty forest", "SDXL")

	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, img, res.Data)
	assert.Equal(t, "stabilityai/stable-diffusion-xl-base-1.0", res.Model)
}

func TestHFBackend_NoKey(t *testing.T) {
	_, _, err := visuals.NewHFBackend("http://127.0.0.1:1", "", time.Second).
		Generate(context.Background(), "p", "m", visuals.DefaultOptions())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HUGGINGFACE_API_KEY")
}

func TestPollinationsBackend_SeededGet(t *testing.T) {
	img := pngBytes(t)
	var seeds []string
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/prompt/golden hour city", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("nologo"))
		assert.Equal(t, "flux", q.Get("model"))
		assert.Equal(t, "512", q.Get("width"))
		seeds = append(seeds, q.Get("seed"))
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}))
	defer srv.Close()

	opts := visuals.DefaultOptions()
	opts.Width, opts.Height = 512, 512
	p := visuals.NewPollinationsBackend(srv.URL, time.Second)

	for i := 0; i < 2; i++ {
		data, ctype, err := p.Generate(context.Background(), "golden hour city", "", opts)
		require.NoError(t, err)
		assert.Equal(t, img, data)
		assert.Equal(t, "image/png", ctype)
	}
	require.Len(t, seeds, 2)
	assert.Equal(t, seeds[0], seeds[1])
	assert.NotEmpty(t, seeds[0])
}

func TestPollinationsBackend_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, _, err := visuals.NewPollinationsBackend(srv.URL, time.Second).
		Generate(context.Background(), "x", "", visuals.DefaultOptions())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
