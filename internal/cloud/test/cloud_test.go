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

package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	test "github.com/jaycherian/gcp-go-highlight-clipper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu       sync.Mutex
	failures int
	calls    int
	models   []string
	configs  []*genai.GenerateContentConfig
	answer   string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	f.configs = append(f.configs, config)
	if f.calls <= f.failures {
		return nil, errors.New("resource exhausted")
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.answer}, {Text: "!"}}}},
			{Content: nil},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 3},
	}, nil
}

func newModel(t *testing.T, handle cloud.ContentGenerator) *cloud.QuotaAwareGenerativeAIModel {
	t.Helper()
	config := test.GetConfig()
	models := cloud.NewAgentModels(config, handle)
	model, ok := models[cloud.HighlightModelName]
	require.True(t, ok)
	model.RetryDelay = 0
	return model
}

func TestConfigLoadsBaseAndRuntimeFiles(t *testing.T) {
	config := test.GetConfig()

	// base file
	assert.Equal(t, "whisper-cli", config.Transcription.Command)
	assert.Equal(t, 5, config.Transcoder.MaxHighlights)
	assert.Contains(t, config.PromptTemplates.HighlightPrompt, "{{ .TRANSCRIPT }}")
	// runtime file
	assert.Equal(t, "highlight-clipper-test", config.Application.Name)
	assert.Equal(t, 0, config.Transcription.RetryDelaySeconds)
	assert.False(t, config.Transcoder.ClampToDuration)

	assert.False(t, config.ClipArchiveEnabled())
	assert.False(t, config.ClipCatalogEnabled())
	assert.NoError(t, cloud.ValidateConfig(config))
}

func TestConfigFilesDefaultToTestRuntime(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "conf")
	t.Setenv(cloud.EnvConfigRuntime, "")

	base, runtime := cloud.ConfigFiles()
	assert.Equal(t, filepath.Join("conf", ".env.toml"), base)
	assert.Equal(t, filepath.Join("conf", ".env.test.toml"), runtime)
}

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	test.WriteFile(t, dir, ".env.broken.toml", "[application\nname = ")
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "broken")

	err := cloud.LoadConfig(cloud.NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env.broken.toml")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*cloud.Config)
		want   string
	}{
		{"no workers", func(c *cloud.Config) { c.Application.ThreadPoolSize = 0 }, "ThreadPoolSize"},
		{"unknown backend", func(c *cloud.Config) { c.Application.GenAIBackend = "openai" }, "GenAIBackend"},
		{"no extensions", func(c *cloud.Config) { c.Storage.AllowedExtensions = nil }, "AllowedExtensions"},
		{"zero window", func(c *cloud.Config) { c.Transcoder.WindowSeconds = 0 }, "WindowSeconds"},
		{"missing highlight model", func(c *cloud.Config) {
			c.AgentModels = map[string]cloud.VertexAiLLMModel{"other": {Model: "gemini-2.0-flash", RateLimit: 1}}
		}, cloud.HighlightModelName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := test.GetConfig()
			models := make(map[string]cloud.VertexAiLLMModel, len(config.AgentModels))
			for k, v := range config.AgentModels {
				models[k] = v
			}
			config.AgentModels = models
			tt.mutate(config)

			err := cloud.ValidateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnvironmentReadsDotEnv(t *testing.T) {
	t.Setenv(cloud.EnvGoogleAPIKey, "")
	require.NoError(t, os.Unsetenv(cloud.EnvGoogleAPIKey))
	dotEnv := test.WriteFile(t, t.TempDir(), ".env", "GOOGLE_API_KEY=from-dotenv\n")

	config := test.GetConfig()
	require.NoError(t, cloud.ApplyEnvironment(config, dotEnv))
	assert.Equal(t, "from-dotenv", config.Application.GoogleAPIKey)
}

func TestApplyEnvironmentPrefersEnvironment(t *testing.T) {
	t.Setenv(cloud.EnvGoogleAPIKey, "env-key")

	config := test.GetConfig()
	require.NoError(t, cloud.ApplyEnvironment(config, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "env-key", config.Application.GoogleAPIKey)
}

func TestNewGenAIClientConfig(t *testing.T) {
	config := test.GetConfig()
	gemini := cloud.NewGenAIClientConfig(config)
	assert.Equal(t, genai.BackendGeminiAPI, gemini.Backend)
	assert.Equal(t, config.Application.GoogleAPIKey, gemini.APIKey)

	config.Application.GenAIBackend = cloud.GenAIBackendVertex
	config.Application.GoogleProjectId = "clipper-project"
	vertex := cloud.NewGenAIClientConfig(config)
	assert.Equal(t, genai.BackendVertexAI, vertex.Backend)
	assert.Equal(t, "clipper-project", vertex.Project)
}

func TestAgentModelsCarryGenerationConfig(t *testing.T) {
	handle := &fakeModels{answer: "[00:10] Kickoff"}
	model := newModel(t, handle)

	assert.Equal(t, "gemini-2.0-flash", model.ModelName)
	gen := model.GenerativeContentConfig
	require.NotNil(t, gen.SystemInstruction)
	assert.Contains(t, gen.SystemInstruction.Parts[0].Text, "highlight")
	assert.Equal(t, "text/plain", gen.ResponseMIMEType)
	assert.Equal(t, int32(1024), gen.MaxOutputTokens)
	assert.Len(t, gen.SafetySettings, 4)
}

func TestGeminiTextGeneratorJoinsParts(t *testing.T) {
	handle := &fakeModels{answer: "[00:10] Kickoff"}
	generator := cloud.NewGeminiTextGenerator("test", newModel(t, handle))

	text, err := generator.GenerateText(context.Background(), "find highlights")
	require.NoError(t, err)
	assert.Equal(t, "[00:10] Kickoff!", text)
	assert.Equal(t, 1, handle.calls)
	assert.Equal(t, []string{"gemini-2.0-flash"}, handle.models)
}

func TestGeminiTextGeneratorRetriesInPlace(t *testing.T) {
	handle := &fakeModels{failures: 1, answer: "ok"}
	generator := cloud.NewGeminiTextGenerator("test", newModel(t, handle))

	text, err := generator.GenerateText(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok!", text)
	assert.Equal(t, 2, handle.calls)
}

func TestGeminiTextGeneratorGivesUp(t *testing.T) {
	handle := &fakeModels{failures: 100}
	generator := cloud.NewGeminiTextGenerator("test", newModel(t, handle))

	_, err := generator.GenerateText(context.Background(), "p")
	assert.EqualError(t, err, "resource exhausted")
	// each of the 1+MaxRetries attempts retries once in place
	assert.Equal(t, 2*(cloud.MaxRetries+1), handle.calls)
}

func TestGenerateContentStopsOnCancel(t *testing.T) {
	handle := &fakeModels{failures: 100}
	model := newModel(t, handle)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := model.GenerateContent(ctx, cloud.NewTextPart("p"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, handle.calls)
}

func TestRedeliverOnlyTransientErrors(t *testing.T) {
	malformed := cloud.Unprocessable(errors.New("bad json"))
	transient := errors.New("connection reset")

	assert.False(t, cloud.Redeliver(nil))
	assert.False(t, cloud.Redeliver(map[string]error{"decode": malformed}))
	assert.ErrorIs(t, fmt.Errorf("store: %w", malformed), cloud.ErrUnprocessable)
	assert.False(t, cloud.Redeliver(map[string]error{"store": fmt.Errorf("store: %w", malformed)}))
	assert.True(t, cloud.Redeliver(map[string]error{"download": transient}))
	assert.True(t, cloud.Redeliver(map[string]error{"decode": malformed, "download": transient}))
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", cloud.ResponseText(nil))
	assert.Equal(t, "", cloud.ResponseText(&genai.GenerateContentResponse{}))
}

func TestGCSObjectNames(t *testing.T) {
	obj := &cloud.GCSObject{Bucket: "media-in", Name: "raw/2024/keynote.mp4"}
	assert.Equal(t, "gs://media-in/raw/2024/keynote.mp4", obj.URI())
	assert.Equal(t, "keynote.mp4", obj.BaseName())

	assert.Equal(t, "videos/3/a.mp4", cloud.ArchiveObjectName("", "videos", "3", "a.mp4"))
	assert.Equal(t, "highlights/videos/3/a.mp4", cloud.ArchiveObjectName("/highlights/", "videos", "3", "a.mp4"))
	assert.Equal(t, "highlights/videos/12/clip_1_x.mp4", cloud.ClipArchiveObject("highlights", 12, filepath.Join("static", "clips", "clip_1_x.mp4")))
}
