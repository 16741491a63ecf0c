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

// Package workflow combines the commands into the pipelines of the service:
// the highlight clip chain run per video, the processor that drives a video
// through its statuses, the job runner that bounds concurrent runs, and the
// background workflows around them.
package workflow

import (
	goctx "context"
	"errors"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// ErrNoPipelineResult is returned when the chain finished without errors but
// also without producing the rendered clip list, which happens when a step
// was not executable.
var ErrNoPipelineResult = errors.New("pipeline produced no clips result")

// HighlightClipWorkflow turns one local video into rendered highlight clips:
// transcribe, ask the model for highlights, clamp them to the media length,
// render. It is the "process" unit of a run; if any step fails the run fails
// as a whole.
type HighlightClipWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	transcriber    commands.Transcriber
	generator      commands.TextGenerator
	renderer       commands.HighlightRenderer
	prober         commands.DurationProber
	promptTemplate *template.Template
	chain          cor.Chain
}

func (h *HighlightClipWorkflow) Execute(context cor.Context) {
	h.chain.Execute(context)
}

func (h *HighlightClipWorkflow) initializeChain() {
	parser := commands.HighlightParser{
		LeadInSeconds: h.config.Transcoder.LeadInSeconds,
		WindowSeconds: h.config.Transcoder.WindowSeconds,
		MaxHighlights: h.config.Transcoder.MaxHighlights,
	}

	out := cor.NewBaseChain(h.GetName())

	out.AddCommand(commands.NewMediaTranscribe("transcribe-media", h.transcriber, h.config.Storage.TranscriptsFolder))

	out.AddCommand(commands.NewHighlightExtractor("extract-highlights", h.generator, h.promptTemplate, parser))

	out.AddCommand(commands.NewDurationClamp("clamp-highlights", h.prober, h.config.Transcoder.ClampToDuration))

	out.AddCommand(commands.NewClipRenderer("render-clips", h.renderer, h.config.Application.ThreadPoolSize))

	h.chain = out
}

// Process runs the chain for source on behalf of videoID and returns the
// rendered clips in highlight order. A zero videoID marks an ad hoc run that
// has no Video row.
func (h *HighlightClipWorkflow) Process(ctx goctx.Context, videoID uint, source string) ([]*model.RenderedClip, error) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	if videoID != 0 {
		chainCtx.Add(commands.GetVideoIDParameterName(), videoID)
	}
	chainCtx.Add(commands.GetSourceFileParameterName(), source)

	h.Execute(chainCtx)

	if err := chainCtx.FirstError(); err != nil {
		return nil, err
	}
	// renders interrupted by cancellation are dropped, not failed
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled: %w", err)
	}
	clips, ok := chainCtx.Get(commands.GetRenderedClipsParameterName()).([]*model.RenderedClip)
	if !ok {
		return nil, ErrNoPipelineResult
	}
	return clips, nil
}

// NewHighlightClipWorkflow wires the chain. The transcoder and prober default
// to ffmpeg when nil.
func NewHighlightClipWorkflow(
	config *cloud.Config,
	transcriber commands.Transcriber,
	generator commands.TextGenerator,
	renderer commands.HighlightRenderer,
	prober commands.DurationProber) (*HighlightClipWorkflow, error) {

	promptTemplate, err := template.New("highlight-template").Parse(config.PromptTemplates.HighlightPrompt)
	if err != nil {
		return nil, fmt.Errorf("invalid highlight prompt template: %w", err)
	}
	if renderer == nil {
		renderer = commands.NewMediaTranscoder(config.Transcoder, config.Storage.ClipsFolder)
	}
	if prober == nil {
		prober = commands.ProbeDuration
	}

	out := &HighlightClipWorkflow{
		BaseCommand:    *cor.NewBaseCommand("highlight-clip-pipeline"),
		config:         config,
		transcriber:    transcriber,
		generator:      generator,
		renderer:       renderer,
		prober:         prober,
		promptTemplate: promptTemplate,
	}
	out.initializeChain()
	return out, nil
}
