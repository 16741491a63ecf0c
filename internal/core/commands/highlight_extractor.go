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

// This file holds the highlight extraction command. It renders the prompt
// template with the transcript, sends it to the language model and parses the
// answer into highlights.
//
// A failed model call is not a pipeline failure: the command logs it and
// outputs an empty highlight list, which later yields a run with no clips.
package commands

import (
	"bytes"
	goctx "context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TextGenerator answers a prompt with text. cloud.GeminiTextGenerator is the
// production implementation.
type TextGenerator interface {
	GenerateText(ctx goctx.Context, prompt string) (string, error)
}

// HighlightExtractor is a cor command: transcript in, []*model.Highlight out.
type HighlightExtractor struct {
	cor.BaseCommand
	generator      TextGenerator
	promptTemplate *template.Template
	parser         HighlightParser
	serviceErrors  metric.Int64Counter
}

func NewHighlightExtractor(name string, generator TextGenerator, prompt *template.Template, parser HighlightParser) *HighlightExtractor {
	out := &HighlightExtractor{
		BaseCommand:    *cor.NewBaseCommand(name),
		generator:      generator,
		promptTemplate: prompt,
		parser:         parser,
	}
	out.OutputParamName = GetHighlightsParameterName()
	out.serviceErrors, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.service_error", name))
	return out
}

// GenerateParams builds the template vocabulary: TRANSCRIPT, COUNT and
// EXAMPLE (a sample answer line).
func (h *HighlightExtractor) GenerateParams(transcript string) map[string]interface{} {
	return map[string]interface{}{
		"TRANSCRIPT": transcript,
		"COUNT":      h.parser.MaxHighlights,
		"EXAMPLE":    model.GetExampleHighlightLine(),
	}
}

// BuildPrompt renders the prompt for transcript.
func (h *HighlightExtractor) BuildPrompt(transcript string) (string, error) {
	var buffer bytes.Buffer
	if err := h.promptTemplate.Execute(&buffer, h.GenerateParams(transcript)); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}

func (h *HighlightExtractor) Execute(context cor.Context) {
	transcript, ok := context.Get(h.GetInputParam()).(string)
	if !ok {
		h.Fail(context, fmt.Errorf("expected transcript text, got %T", context.Get(h.GetInputParam())))
		return
	}

	prompt, err := h.BuildPrompt(transcript)
	if err != nil {
		h.Fail(context, err)
		return
	}

	span := trace.SpanFromContext(context.GetContext())
	answer, err := h.generator.GenerateText(context.GetContext(), prompt)
	if err != nil {
		h.serviceErrors.Add(context.GetContext(), 1)
		span.SetAttributes(attribute.String("highlight.service_error", err.Error()))
		slog.WarnContext(context.GetContext(), "highlight service failed; continuing without highlights", "error", err)
		h.Succeed(context, make([]*model.Highlight, 0))
		return
	}

	highlights := h.parser.Parse(answer)
	span.SetAttributes(attribute.Int("highlight.count", len(highlights)))
	slog.InfoContext(context.GetContext(), "highlights extracted", "count", len(highlights))
	h.Succeed(context, highlights)
}
