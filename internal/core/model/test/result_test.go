// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model_test

import (
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func TestRunResultStatus(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "processed", model.Succeeded(3).Status())
	assert.Equal(t, "error: Failed to initialize video processor: boom", model.Failed(model.FailureInitialization, cause).Status())
	assert.Equal(t, "error: Failed to process video: boom", model.Failed(model.FailureProcessing, cause).Status())
	assert.Equal(t, "error: Failed to save clip: boom", model.Failed(model.FailureSaveClip, cause).Status())
	assert.Equal(t, "error: Unexpected error: boom", model.Failed(model.FailureUnexpected, cause).Status())
	assert.Equal(t, "error: Unexpected error: unknown cause", model.Failed(model.FailureUnexpected, nil).Status())
}

func TestRunResultUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	result := model.Failed(model.FailureSaveClip, cause)

	assert.False(t, result.OK())
	assert.ErrorIs(t, result, cause)
	assert.Equal(t, "save_clip", result.Kind.String())
}

func TestVideoIsTerminal(t *testing.T) {
	for status, terminal := range map[string]bool{
		model.StatusUploaded:     false,
		model.StatusInitializing: false,
		model.StatusTranscribing: false,
		model.StatusSavingClips:  false,
		model.StatusProcessed:    true,
		"error: Failed to process video: x": true,
	} {
		v := &model.Video{Status: status}
		assert.Equal(t, terminal, v.IsTerminal(), status)
	}
}

func TestRenderedClipToClip(t *testing.T) {
	rendered := &model.RenderedClip{
		Path:      "clips/clip_1_abc.mp4",
		Highlight: &model.Highlight{Start: 5, End: 40, Description: "exciting reveal here"},
	}
	clip := rendered.ToClip(7)

	assert.Equal(t, uint(7), clip.VideoID)
	assert.Equal(t, "clips/clip_1_abc.mp4", clip.ClipPath)
	assert.Equal(t, 5.0, clip.StartTime)
	assert.Equal(t, 40.0, clip.EndTime)
	assert.Equal(t, "exciting reveal here", clip.Description)
	assert.Equal(t, 35.0, rendered.Highlight.Duration())
}

func TestExampleHighlightLine(t *testing.T) {
	assert.Equal(t, "[02:15] Key point about technology impact", model.GetExampleHighlightLine())
	assert.Equal(t, "00:05", model.FormatTimestamp(5))
	assert.Equal(t, "61:01", model.FormatTimestamp(3661))
}
