package render

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

// Image is one still shown for Duration seconds
type Image struct {
	URL      string
	Duration float64
}

// Spec describes one video. SRT is optional and only used when subtitle
// burn-in is enabled.
type Spec struct {
	AudioURL   string
	Images     []Image
	OutputPath string
	Width      int
	Height     int
	FPS        int
	SRT        string
}

// Assembler renders a slideshow video over a narration track with ffmpeg
type Assembler struct {
	ffmpeg     string
	fetchLimit int
	workRoot   string
	burnSubs   bool
	font       string
	fontSize   int
	client     *resty.Client
}

func New(cfg *config.Config) *Assembler {
	rc := cfg.Render
	a := NewWithBinary(rc.FFmpeg)
	if rc.FetchLimit > 0 {
		a.fetchLimit = rc.FetchLimit
	}
	a.workRoot = rc.WorkDir
	a.burnSubs = rc.BurnSubtitles
	if rc.Font != "" {
		a.font = rc.Font
	}
	if rc.FontSize > 0 {
		a.fontSize = rc.FontSize
	}
	return a
}

func NewWithBinary(ffmpeg string) *Assembler {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Assembler{
		ffmpeg:     ffmpeg,
		fetchLimit: 3,
		font:       "Arial",
		fontSize:   14,
		client:     resty.New().SetTimeout(60 * time.Second),
	}
}

// WithWorkDir sets where per-run temp directories are created
func (a *Assembler) WithWorkDir(dir string) *Assembler {
	a.workRoot = dir
	return a
}

// WithSubtitles enables burning Spec.SRT into the frames
func (a *Assembler) WithSubtitles(on bool) *Assembler {
	a.burnSubs = on
	return a
}

// Available reports whether ffmpeg can be run
func (a *Assembler) Available(ctx context.Context) error {
	if err := exec.CommandContext(ctx, a.ffmpeg, "-version").Run(); err != nil {
		return types.Errorf(types.KindToolUnavailable, "assemble", "ffmpeg not found (%s): %v", a.ffmpeg, err)
	}
	return nil
}

// Assemble writes the video to spec.OutputPath and returns that path
func (a *Assembler) Assemble(ctx context.Context, spec Spec) (string, error) {
	spec = withDefaults(spec)
	if err := validate(spec); err != nil {
		return "", err
	}
	if err := a.Available(ctx); err != nil {
		return "", err
	}

	log.Printf("[render] Starting video assembly: %d images, %dx%d @ %dfps", len(spec.Images), spec.Width, spec.Height, spec.FPS)

	if a.workRoot != "" {
		if err := os.MkdirAll(a.workRoot, 0755); err != nil {
			return "", types.Wrap(types.KindAssembly, "assemble", err)
		}
	}
	workDir, err := os.MkdirTemp(a.workRoot, "video-")
	if err != nil {
		return "", types.Wrap(types.KindAssembly, "assemble", err)
	}
	defer os.RemoveAll(workDir)

	local, err := a.fetchImages(ctx, spec.Images, workDir)
	if err != nil {
		return "", types.Wrap(types.KindAssembly, "fetch images", err)
	}

	listFile := filepath.Join(workDir, "images.txt")
	if err := os.WriteFile(listFile, []byte(concatList(local, spec.Images)), 0644); err != nil {
		return "", types.Wrap(types.KindAssembly, "assemble", err)
	}

	srtFile := ""
	if a.burnSubs && strings.TrimSpace(spec.SRT) != "" {
		srtFile = filepath.Join(workDir, "subtitles.srt")
		if err := os.WriteFile(srtFile, []byte(spec.SRT), 0644); err != nil {
			return "", types.Wrap(types.KindAssembly, "assemble", err)
		}
	}

	if dir := filepath.Dir(spec.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", types.Wrap(types.KindAssembly, "assemble", err)
		}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.ffmpeg, a.buildArgs(spec, listFile, srtFile)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", types.Wrap(types.KindCancelled, "assemble", ctx.Err())
		}
		return "", types.Errorf(types.KindAssembly, "assemble", "ffmpeg failed: %v: %s", err, tail(stderr.String(), 500))
	}
	if fi, err := os.Stat(spec.OutputPath); err != nil || fi.Size() == 0 {
		return "", types.Errorf(types.KindAssembly, "assemble", "ffmpeg produced no output at %s: %s", spec.OutputPath, tail(stderr.String(), 500))
	}

	log.Printf("[render] ✅ Video assembled: %s", spec.OutputPath)
	return spec.OutputPath, nil
}

func withDefaults(spec Spec) Spec {
	if spec.Width <= 0 {
		spec.Width = 1080
	}
	if spec.Height <= 0 {
		spec.Height = 1920
	}
	if spec.FPS <= 0 {
		spec.FPS = 24
	}
	return spec
}

func validate(spec Spec) error {
	if strings.TrimSpace(spec.AudioURL) == "" {
		return types.Errorf(types.KindValidation, "assemble", "audio URL is required")
	}
	if len(spec.Images) == 0 {
		return types.Errorf(types.KindValidation, "assemble", "at least one image is required")
	}
	if strings.TrimSpace(spec.OutputPath) == "" {
		return types.Errorf(types.KindValidation, "assemble", "output path is required")
	}
	for i, img := range spec.Images {
		if img.Duration <= 0 {
			return types.Errorf(types.KindValidation, "assemble", "image %d has non-positive duration %v", i, img.Duration)
		}
		if strings.TrimSpace(img.URL) == "" {
			return types.Errorf(types.KindValidation, "assemble", "image %d has no URL", i)
		}
	}
	return nil
}

// fetchImages downloads or copies every image into dir, at most fetchLimit at
// a time. Paths come back in input order; any failure aborts the batch.
func (a *Assembler) fetchImages(ctx context.Context, images []Image, dir string) ([]string, error) {
	paths := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fetchLimit)

	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			dst := filepath.Join(dir, fmt.Sprintf("image-%03d%s", i, imageExt(img.URL)))
			if err := a.fetchOne(gctx, img.URL, dst); err != nil {
				return fmt.Errorf("image %d (%s): %w", i, img.URL, err)
			}
			paths[i] = dst
			log.Printf("[render] Downloaded image %s", types.SceneLabel(i, len(images)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (a *Assembler) fetchOne(ctx context.Context, src, dst string) error {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		resp, err := a.client.R().SetContext(ctx).Get(src)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("HTTP %d", resp.StatusCode())
		}
		return os.WriteFile(dst, resp.Body(), 0644)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// concatList builds the concat demuxer manifest. The last file is listed a
// second time without a duration or ffmpeg drops its duration.
func concatList(paths []string, images []Image) string {
	var b strings.Builder
	for i, p := range paths {
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", quoteConcat(p), strconv.FormatFloat(images[i].Duration, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "file '%s'\n", quoteConcat(paths[len(paths)-1]))
	return b.String()
}

func quoteConcat(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
}

func (a *Assembler) buildArgs(spec Spec, listFile, srtFile string) []string {
	w, h := spec.Width, spec.Height
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
	if srtFile != "" {
		vf += fmt.Sprintf(",subtitles=%s:force_style='FontName=%s,FontSize=%d,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=2,Alignment=2,MarginV=60'",
			escapeSubtitlePath(srtFile), a.font, a.fontSize)
	}
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-i", spec.AudioURL,
		"-vf", vf,
		"-r", strconv.Itoa(spec.FPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-shortest",
		"-movflags", "+faststart",
		spec.OutputPath,
	}
}

func escapeSubtitlePath(path string) string {
	// ffmpeg's subtitle filter needs escaped colons and backslashes
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	return path
}

func imageExt(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch ext := strings.ToLower(filepath.Ext(u)); ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return ext
	}
	return ".jpg"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
