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
// This file contains the configuration loader and the helpers around calls to
// the generative model.
//
// Functions:
//   - LoadConfig: reads ".env.toml" and then ".env.<runtime>.toml" from the
//     directory named by GCP_CONFIG_PREFIX. Values in the runtime file win.
//   - ApplyEnvironment: loads a ".env" file if present and lets environment
//     variables override secrets.
//   - ValidateConfig: checks the struct tags of a loaded Config.
//   - GenerateTextResponse: calls a quota aware model with retries and token
//     metrics, returning the concatenated text of the answer.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // directory holding the TOML files
	EnvConfigRuntime    = "GCP_RUNTIME"       // "local", "test", "prod", ...
	EnvGoogleAPIKey     = "GOOGLE_API_KEY"
	MaxRetries          = 3
)

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime configuration file names derived
// from the environment.
func ConfigFiles() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}
	base = filepath.Join(prefix, ConfigFileBaseName+ConfigFileExtension)
	runtime = filepath.Join(prefix, ConfigFileBaseName+ConfigSeparator+runtimeEnvironment+ConfigFileExtension)
	return base, runtime
}

// LoadConfig decodes the base configuration file and then the runtime
// override file into baseConfig. Missing files are skipped; a file that
// exists but does not decode is an error.
func LoadConfig(baseConfig interface{}) error {
	baseConfigFileName, envConfigFileName := ConfigFiles()
	slog.Info("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode base configuration file %s: %w", baseConfigFileName, err)
		}
	}

	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode environment configuration file %s: %w", envConfigFileName, err)
		}
	}
	return nil
}

// ApplyEnvironment loads dotEnvFiles (".env" when none are given) if they
// exist and copies secrets from the environment into config.
func ApplyEnvironment(config *Config, dotEnvFiles ...string) error {
	if len(dotEnvFiles) == 0 {
		dotEnvFiles = []string{".env"}
	}
	for _, f := range dotEnvFiles {
		if !fileExists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	if v := os.Getenv(EnvGoogleAPIKey); v != "" {
		config.Application.GoogleAPIKey = v
	}
	return nil
}

// ValidateConfig checks the validate tags of config.
func ValidateConfig(config *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := config.AgentModels[HighlightModelName]; !ok {
		return fmt.Errorf("invalid configuration: agent model %q is not defined", HighlightModelName)
	}
	return nil
}

// ResponseText concatenates the text parts of every candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// GenerateTextResponse sends contents to model, retrying up to MaxRetries
// times, and returns the text of the answer.
//
// Inputs:
//   - ctx: The context for the request, which controls cancellation and tracing.
//   - inputTokenCounter, outputTokenCounter: token usage counters.
//   - retryCounter: incremented for each retry.
//   - tryCount: the current attempt, 0 on the first call.
//   - model: the rate limited model.
//   - contents: the prompt.
//
// Outputs:
//   - string: the answer text.
//   - error: the last error once retries are exhausted.
func GenerateTextResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	model *QuotaAwareGenerativeAIModel,
	contents []*genai.Content) (value string, err error) {
	resp, err := model.GenerateContent(ctx, contents)
	if err != nil {
		if tryCount < MaxRetries && ctx.Err() == nil {
			retryCounter.Add(ctx, 1)
			return GenerateTextResponse(ctx, inputTokenCounter, outputTokenCounter, retryCounter, tryCount+1, model, contents)
		}
		return "", err
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	return ResponseText(resp), nil
}

// NewTextPart wraps a prompt string as user content.
func NewTextPart(in string) []*genai.Content {
	return genai.Text(in)
}
