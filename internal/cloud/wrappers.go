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

// Package cloud provides components for interacting with Google Cloud services.
// This file decorates the generative model client with a rate limiter so that
// concurrent pipeline runs share the model quota, and exposes the decorated
// model as a plain text generator.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: a model name, its generation config and a
//     token bucket limiter.
//   - GeminiTextGenerator: prompt-in, text-out adapter with token metrics.
package cloud

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the subset of *genai.Models the wrapper calls.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel limits calls to a generative model to
// RateLimit requests per second shared by every caller.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
	RetryDelay              time.Duration // pause before the single in-place retry
}

// NewQuotaAwareModel wraps handle for model name with a limiter that refills
// requestsPerSecond tokens each second.
//
// Inputs:
//   - wrapped: generation config sent with every request.
//   - name: model name, e.g. "gemini-2.0-flash".
//   - handle: the genai Models service (or a test double).
//   - requestsPerSecond: limiter rate and burst.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: the decorated model.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle ContentGenerator, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		RetryDelay:              5 * time.Second,
	}
}

// GenerateContent waits for a limiter token and calls the model. A failed call
// is retried once after RetryDelay; further retries belong to the caller.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.GenerativeContentConfig)
	if err == nil {
		return resp, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(q.RetryDelay):
	}
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.GenerativeContentConfig)
}

// GeminiTextGenerator turns a prompt into model text and records token usage.
type GeminiTextGenerator struct {
	model              *QuotaAwareGenerativeAIModel
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewGeminiTextGenerator creates counters named "<name>.gemini.token.input",
// "<name>.gemini.token.output" and "<name>.gemini.retry".
func NewGeminiTextGenerator(name string, model *QuotaAwareGenerativeAIModel) *GeminiTextGenerator {
	meter := otel.Meter(name)
	g := &GeminiTextGenerator{model: model}
	g.inputTokenCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.input", name))
	g.outputTokenCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.output", name))
	g.retryCounter, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.retry", name))
	return g
}

func (g *GeminiTextGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return GenerateTextResponse(ctx, g.inputTokenCounter, g.outputTokenCounter, g.retryCounter, 0, g.model, NewTextPart(prompt))
}
