package audio

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"prompt-video-pipeline/config"
	"prompt-video-pipeline/types"
)

const (
	ProviderEdge = "edge"
	ProviderGTTS = "gtts"
)

// edgeVoices maps language → gender → edge-tts voice
var edgeVoices = map[string]map[string]string{
	"en": {types.GenderMale: "en-US-GuyNeural", types.GenderFemale: "en-US-JennyNeural"},
	"ar": {types.GenderMale: "ar-SA-HamedNeural", types.GenderFemale: "ar-SA-ZariyahNeural"},
	"fr": {types.GenderMale: "fr-FR-HenriNeural", types.GenderFemale: "fr-FR-DeniseNeural"},
}

// Voice returns the edge-tts voice for a language and gender
func Voice(language, gender string) (string, error) {
	byGender, ok := edgeVoices[language]
	if !ok {
		return "", types.Errorf(types.KindValidation, "voice", "unsupported language %q", language)
	}
	v, ok := byGender[gender]
	if !ok {
		return "", types.Errorf(types.KindValidation, "voice", "unsupported gender %q for %s", gender, language)
	}
	return v, nil
}

// Backend writes speech for text into outFile and reports the voice it used
type Backend interface {
	Name() string
	Synthesize(ctx context.Context, text, language, gender, outFile string) (string, error)
}

// Synthesizer owns the backends and the output directory
type Synthesizer struct {
	backends  map[string]Backend
	order     []string
	outputDir string
	ffprobe   string
}

// New wires the edge-tts and gTTS backends from config
func New(cfg *config.Config) *Synthesizer {
	ac := cfg.Audio
	s := NewWithBackends(ac.OutputDir,
		NewEdgeBackend(ac.EdgeTTS, ac.Timeout),
		NewGTTSBackend(ac.GTTSURL, ac.Timeout),
	)
	s.ffprobe = ac.FFprobe
	return s
}

// NewWithBackends keeps backends in the given order; the first is the default
func NewWithBackends(outputDir string, backends ...Backend) *Synthesizer {
	s := &Synthesizer{backends: map[string]Backend{}, outputDir: outputDir}
	for _, b := range backends {
		s.backends[b.Name()] = b
		s.order = append(s.order, b.Name())
	}
	return s
}

// Synthesize runs exactly one backend
func (s *Synthesizer) Synthesize(ctx context.Context, text, language, gender, provider string) (types.AudioArtifact, error) {
	if strings.TrimSpace(text) == "" {
		return types.AudioArtifact{}, types.Errorf(types.KindValidation, "synthesize", "text is empty")
	}
	if _, err := Voice(language, gender); err != nil {
		return types.AudioArtifact{}, err
	}
	backend, ok := s.backends[s.resolve(provider)]
	if !ok {
		return types.AudioArtifact{}, types.Errorf(types.KindValidation, "synthesize", "unknown tts provider %q", provider)
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return types.AudioArtifact{}, fmt.Errorf("create audio dir: %w", err)
	}
	outFile := filepath.Join(s.outputDir, fmt.Sprintf("%d-%s.mp3", time.Now().UnixNano(), uuid.NewString()[:8]))

	log.Printf("[audio] Generating speech via %s (%s/%s, %d chars)...", backend.Name(), language, gender, len(text))
	voice, err := backend.Synthesize(ctx, text, language, gender, outFile)
	if err == nil {
		err = checkOutput(outFile)
	}
	if err != nil {
		os.Remove(outFile)
		return types.AudioArtifact{}, types.Wrap(types.KindUpstream, backend.Name(), err)
	}

	artifact := types.AudioArtifact{LocalPath: outFile, Provider: backend.Name(), Voice: voice, Storage: types.StorageLocal}
	if dur, err := getAudioDuration(ctx, s.ffprobe, outFile); err == nil {
		artifact.DurationSec = dur
	}
	log.Printf("[audio] ✅ %s → %s (%.1fs)", backend.Name(), outFile, artifact.DurationSec)
	return artifact, nil
}

// SynthesizeWithFallback tries the requested backend, then each other backend once
func (s *Synthesizer) SynthesizeWithFallback(ctx context.Context, text, language, gender, provider string) (types.AudioArtifact, error) {
	first := s.resolve(provider)
	artifact, err := s.Synthesize(ctx, text, language, gender, first)
	if err == nil {
		return artifact, nil
	}
	switch types.KindOf(err) {
	case types.KindValidation, types.KindCancelled:
		return types.AudioArtifact{}, err
	}

	errs := []string{err.Error()}
	for _, name := range s.order {
		if name == first {
			continue
		}
		log.Printf("[audio] ⚠️  %s failed, falling back to %s: %v", first, name, err)
		artifact, err = s.Synthesize(ctx, text, language, gender, name)
		if err == nil {
			return artifact, nil
		}
		if types.KindOf(err) == types.KindCancelled {
			return types.AudioArtifact{}, err
		}
		errs = append(errs, err.Error())
	}
	return types.AudioArtifact{}, types.Errorf(types.KindUpstream, "synthesize", "all tts backends failed: %s", strings.Join(errs, "; "))
}

func (s *Synthesizer) resolve(provider string) string {
	if provider == "" && len(s.order) > 0 {
		return s.order[0]
	}
	return provider
}

func checkOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no audio written: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("audio file is empty")
	}
	return nil
}

// getAudioDuration uses ffprobe to get accurate audio duration in seconds
func getAudioDuration(ctx context.Context, ffprobe, audioFile string) (float64, error) {
	if ffprobe == "" {
		return 0, fmt.Errorf("ffprobe not configured")
	}
	bin, err := exec.LookPath(ffprobe)
	if err != nil {
		return 0, err
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioFile,
	).Output()
	if err != nil {
		return 0, err
	}
	var dur float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur)
	return dur, err
}
