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

// This file fans the highlights of one video out to a fixed number of render
// workers. Each highlight is rendered in its own span. A highlight that fails
// to render is dropped and the rest of the batch continues; the output keeps
// the order of the input.
package commands

import (
	goctx "context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClipRenderer is a cor command: []*model.Highlight in, []*model.RenderedClip
// out. The source path is read from GetSourceFileParameterName.
type ClipRenderer struct {
	cor.BaseCommand
	renderer        HighlightRenderer
	numberOfWorkers int
	droppedCounter  metric.Int64Counter
}

func NewClipRenderer(name string, renderer HighlightRenderer, numberOfWorkers int) *ClipRenderer {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	out := &ClipRenderer{
		BaseCommand:     *cor.NewBaseCommand(name),
		renderer:        renderer,
		numberOfWorkers: numberOfWorkers,
	}
	out.InputParamName = GetHighlightsParameterName()
	out.OutputParamName = GetRenderedClipsParameterName()
	out.droppedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.dropped", name))
	return out
}

func (r *ClipRenderer) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.GetContext() != nil &&
		context.Get(r.GetInputParam()) != nil &&
		context.Get(GetSourceFileParameterName()) != nil
}

// renderJob is one highlight waiting for a worker.
type renderJob struct {
	index     int
	ctx       goctx.Context
	span      trace.Span
	source    string
	highlight *model.Highlight
}

func (j *renderJob) Close(status codes.Code, description string) {
	j.span.SetStatus(status, description)
	j.span.End()
}

type renderResult struct {
	index int
	clip  *model.RenderedClip
	err   error
}

func (r *ClipRenderer) Execute(context cor.Context) {
	highlights, ok := context.Get(r.GetInputParam()).([]*model.Highlight)
	if !ok {
		r.Fail(context, fmt.Errorf("expected highlights, got %T", context.Get(r.GetInputParam())))
		return
	}
	source := context.Get(GetSourceFileParameterName()).(string)

	jobs := make(chan *renderJob, len(highlights))
	results := make(chan *renderResult, len(highlights))

	var wg sync.WaitGroup
	for w := 0; w < min(r.numberOfWorkers, max(len(highlights), 1)); w++ {
		wg.Add(1)
		go r.worker(jobs, results, &wg)
	}

	for i, h := range highlights {
		jobCtx, span := r.Tracer.Start(context.GetContext(), fmt.Sprintf("%s_clip_%d", r.GetName(), i+1))
		span.SetAttributes(
			attribute.Int("sequence", i+1),
			attribute.Float64("start", h.Start),
			attribute.Float64("end", h.End),
		)
		jobs <- &renderJob{index: i, ctx: jobCtx, span: span, source: source, highlight: h}
	}
	close(jobs)
	wg.Wait()
	close(results)

	ordered := make([]*model.RenderedClip, len(highlights))
	for res := range results {
		if res.err != nil {
			r.droppedCounter.Add(context.GetContext(), 1)
			slog.WarnContext(context.GetContext(), "highlight dropped", "clip", res.index+1, "error", res.err)
			continue
		}
		ordered[res.index] = res.clip
	}

	clips := make([]*model.RenderedClip, 0, len(highlights))
	for _, c := range ordered {
		if c != nil {
			clips = append(clips, c)
		}
	}
	r.Succeed(context, clips)
}

func (r *ClipRenderer) worker(jobs <-chan *renderJob, results chan<- *renderResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		clip, err := r.render(j)
		if err != nil {
			j.Close(codes.Error, "clip render failed")
			results <- &renderResult{index: j.index, err: err}
			continue
		}
		j.Close(codes.Ok, "clip rendered")
		results <- &renderResult{index: j.index, clip: clip}
	}
}

// render isolates a panicking renderer to its own highlight.
func (r *ClipRenderer) render(j *renderJob) (clip *model.RenderedClip, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()
	// numbering of clip files starts at 1
	return r.renderer.Render(j.ctx, j.source, j.index+1, j.highlight)
}
