package types_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-video-pipeline/types"
)

func TestGenerationRequest_WithDefaults(t *testing.T) {
	req := types.GenerationRequest{Prompt: "  a calm ocean sunset  "}.WithDefaults()

	assert.Equal(t, "a calm ocean sunset", req.Prompt)
	assert.Equal(t, "YouTube", req.Platform)
	assert.Equal(t, "Cinematic", req.Style)
	assert.Equal(t, types.Duration30s, req.Duration)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, types.GenderFemale, req.Gender)
	assert.NoError(t, req.Validate())
}

func TestGenerationRequest_Validate(t *testing.T) {
	base := types.GenerationRequest{Prompt: "x"}.WithDefaults()

	cases := map[string]func(r *types.GenerationRequest){
		"empty prompt": func(r *types.GenerationRequest) { r.Prompt = "   " },
		"bad duration": func(r *types.GenerationRequest) { r.Duration = "90s" },
		"bad language": func(r *types.GenerationRequest) { r.Language = "de" },
		"bad gender":   func(r *types.GenerationRequest) { r.Gender = "robot" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation))
		})
	}
}

func TestScriptPlan_NarrationUsesSceneOrder(t *testing.T) {
	plan := types.ScriptPlan{
		Script: "ignored",
		Scenes: []types.Scene{
			{Number: 2, Narration: "second"},
			{Number: 1, Narration: "first"},
			{Number: 3, Narration: " third "},
		},
	}

	assert.Equal(t, "first second third", plan.Narration())
	assert.Equal(t, 2, plan.Scenes[0].Number, "Narration must not reorder the plan")
}

func TestError_IsAndKind(t *testing.T) {
	err := types.Wrap(types.KindUpstream, "synthesize", assert.AnError)
	wrapped := fmt.Errorf("stage: %w", err)

	assert.True(t, errors.Is(wrapped, types.ErrUpstream))
	assert.False(t, errors.Is(wrapped, types.ErrStorage))
	assert.True(t, errors.Is(wrapped, assert.AnError))
	assert.Equal(t, types.KindUpstream, types.KindOf(wrapped))
	assert.Contains(t, err.Error(), "synthesize")
}

func TestWrap_CancelledContextWins(t *testing.T) {
	err := types.Wrap(types.KindUpstream, "transcribe", fmt.Errorf("poll: %w", context.Canceled))

	assert.True(t, errors.Is(err, types.ErrCancelled))
	assert.Equal(t, types.KindCancelled, types.KindOf(err))
	assert.Nil(t, types.Wrap(types.KindStorage, "upload", nil))
}
