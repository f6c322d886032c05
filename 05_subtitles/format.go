package subtitles

import (
	"bufio"
	"fmt"
	"strings"

	"prompt-video-pipeline/types"
)

// maxCueChars keeps a cue on at most two short lines
const maxCueChars = 42

// Cue is one subtitle block
type Cue struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// FormatSRTTimestamp renders ms as HH:MM:SS,mmm
func FormatSRTTimestamp(ms int64) string {
	return formatTimestamp(ms, ',')
}

// FormatVTTTimestamp renders ms as HH:MM:SS.mmm
func FormatVTTTimestamp(ms int64) string {
	return formatTimestamp(ms, '.')
}

func formatTimestamp(ms int64, sep byte) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}

// GroupCues packs consecutive words into cues of at most maxWords words.
// A speaker change always starts a new cue.
func GroupCues(words []types.Caption, maxWords int) []Cue {
	if maxWords <= 0 {
		maxWords = 8
	}
	var cues []Cue
	var cur []types.Caption
	chars := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		parts := make([]string, len(cur))
		for i, w := range cur {
			parts[i] = w.Text
		}
		cues = append(cues, Cue{StartMs: cur[0].StartMs, EndMs: cur[len(cur)-1].EndMs, Text: strings.Join(parts, " ")})
		cur = cur[:0]
		chars = 0
	}
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		w.Text = text
		if len(cur) > 0 && (len(cur) >= maxWords || chars+1+len(text) > maxCueChars || w.Speaker != cur[0].Speaker) {
			flush()
		}
		if len(cur) > 0 {
			chars++
		}
		chars += len(text)
		cur = append(cur, w)
	}
	flush()
	return cues
}

// BuildSRT derives SubRip captions from word timestamps
func BuildSRT(words []types.Caption, maxWords int) string {
	var b strings.Builder
	for i, c := range GroupCues(words, maxWords) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatSRTTimestamp(c.StartMs), FormatSRTTimestamp(c.EndMs), c.Text)
	}
	return b.String()
}

// BuildVTT derives WebVTT captions from word timestamps
func BuildVTT(words []types.Caption, maxWords int) string {
	cues := GroupCues(words, maxWords)
	if len(cues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", FormatVTTTimestamp(c.StartMs), FormatVTTTimestamp(c.EndMs), c.Text)
	}
	return b.String()
}

// ValidateSRT checks that the SRT text has at least one complete block
func ValidateSRT(srt string) error {
	scanner := bufio.NewScanner(strings.NewReader(srt))
	lineCount := 0
	arrows := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lineCount++
		if strings.Contains(line, "-->") {
			arrows++
		}
	}
	if lineCount < 3 || arrows == 0 {
		return fmt.Errorf("SRT appears empty or malformed (%d lines)", lineCount)
	}
	return nil
}
