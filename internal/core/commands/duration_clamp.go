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

package commands

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// DurationClamp trims highlight windows to the probed length of the source
// video. Highlights that start at or after the end are dropped. If the probe
// fails the highlights pass through unchanged.
type DurationClamp struct {
	cor.BaseCommand
	probe   DurationProber
	enabled bool
}

func NewDurationClamp(name string, probe DurationProber, enabled bool) *DurationClamp {
	out := &DurationClamp{BaseCommand: *cor.NewBaseCommand(name), probe: probe, enabled: enabled}
	out.InputParamName = GetHighlightsParameterName()
	out.OutputParamName = GetHighlightsParameterName()
	return out
}

// ClampHighlights returns copies of highlights limited to duration seconds.
func ClampHighlights(highlights []*model.Highlight, duration float64) []*model.Highlight {
	out := make([]*model.Highlight, 0, len(highlights))
	for _, h := range highlights {
		if h.Start >= duration {
			continue
		}
		clamped := *h
		clamped.End = math.Min(h.End, duration)
		out = append(out, &clamped)
	}
	return out
}

func (d *DurationClamp) Execute(context cor.Context) {
	highlights, ok := context.Get(d.GetInputParam()).([]*model.Highlight)
	if !ok {
		d.Fail(context, fmt.Errorf("expected highlights, got %T", context.Get(d.GetInputParam())))
		return
	}
	source, _ := context.Get(GetSourceFileParameterName()).(string)
	if !d.enabled || len(highlights) == 0 || source == "" {
		d.Succeed(context, highlights)
		return
	}

	duration, err := d.probe(context.GetContext(), source)
	if err != nil || duration <= 0 {
		slog.WarnContext(context.GetContext(), "duration probe failed; highlights left unclamped", "source", source, "error", err)
		d.Succeed(context, highlights)
		return
	}

	clamped := ClampHighlights(highlights, duration)
	if dropped := len(highlights) - len(clamped); dropped > 0 {
		slog.InfoContext(context.GetContext(), "highlights past end of video dropped", "dropped", dropped, "duration", duration)
	}
	d.Succeed(context, clamped)
}
