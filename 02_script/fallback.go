package script

import (
	"fmt"
	"strings"

	"prompt-video-pipeline/types"
)

// Fallback builds a generic plan without any model. It cannot fail.
func Fallback(prompt, style, duration string) types.ScriptPlan {
	n := SceneCount(duration)
	if style == "" {
		style = "Cinematic"
	}
	sceneDuration := 6.0
	if duration == types.Duration15s {
		sceneDuration = 5
	}

	var intro string
	switch style {
	case "Cinematic":
		intro = "Let's explore this topic in a cinematic way."
	case "Documentary":
		intro = "This documentary will guide you through the details."
	default:
		intro = "Let's dive into this exciting topic."
	}

	middle := make([]string, 0, n)
	for i := 2; i < n; i++ {
		middle = append(middle, fmt.Sprintf("Scene %d brings more insights about %s.", i, prompt))
	}
	script := strings.Join(append(append([]string{
		fmt.Sprintf("Welcome to this video about %s.", prompt), intro,
	}, middle...), "Thank you for watching."), " ")

	scenes := make([]types.Scene, 0, n)
	for i := 1; i <= n; i++ {
		var narration string
		switch i {
		case 1:
			narration = fmt.Sprintf("Welcome to this video about %s", prompt)
		case n:
			narration = "Thank you for watching"
		default:
			narration = fmt.Sprintf("Scene %d provides more information about %s", i, prompt)
		}
		scenes = append(scenes, types.Scene{
			Number:      i,
			Duration:    sceneDuration,
			ImagePrompt: fmt.Sprintf("%s style image showing %s, scene %d, professional quality, detailed, high resolution", style, prompt, i),
			Narration:   narration,
		})
	}

	return types.ScriptPlan{Script: script, Scenes: scenes, Source: "local"}
}
