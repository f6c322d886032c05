package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// EdgeBackend shells out to the edge-tts CLI (pip install edge-tts)
type EdgeBackend struct {
	bin     string
	timeout time.Duration
}

func NewEdgeBackend(bin string, timeout time.Duration) *EdgeBackend {
	if bin == "" {
		bin = "edge-tts"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &EdgeBackend{bin: bin, timeout: timeout}
}

func (e *EdgeBackend) Name() string { return ProviderEdge }

func (e *EdgeBackend) Synthesize(ctx context.Context, text, language, gender, outFile string) (string, error) {
	voice, err := Voice(language, gender)
	if err != nil {
		return "", err
	}
	bin, err := exec.LookPath(e.bin)
	if err != nil {
		return "", fmt.Errorf("edge-tts not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"--voice", voice,
		"--text", text,
		"--write-media", outFile,
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("edge-tts timed out after %s", e.timeout)
		}
		return "", fmt.Errorf("edge-tts: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return voice, nil
}
