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

package model

import "fmt"

// Highlight is a candidate moment parsed from the language model's answer.
// Start and End are seconds into the source video.
type Highlight struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Description string  `json:"description"`
}

// Duration is the length of the window to cut.
func (h *Highlight) Duration() float64 {
	return h.End - h.Start
}

func (h *Highlight) String() string {
	return fmt.Sprintf("[%.2f-%.2f] %s", h.Start, h.End, h.Description)
}

// RenderedClip is a finished clip file on disk together with the highlight
// that produced it.
type RenderedClip struct {
	Path      string
	Highlight *Highlight
}

// ToClip converts the rendered clip to a row owned by videoID.
func (r *RenderedClip) ToClip(videoID uint) *Clip {
	return &Clip{
		VideoID:     videoID,
		ClipPath:    r.Path,
		StartTime:   r.Highlight.Start,
		EndTime:     r.Highlight.End,
		Description: r.Highlight.Description,
	}
}

// ProcessingJob is one unit of work for the job runner.
type ProcessingJob struct {
	VideoID  uint
	FilePath string
}
