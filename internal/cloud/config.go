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

// Package cloud defines the application configuration, loaded from layered
// TOML files, and the clients for the external services the clipper talks to
// (Gemini, Cloud Storage, BigQuery, Pub/Sub).
//
// Structs:
//   - Application: process-wide settings (worker pool, listen address, secrets).
//   - Storage: local folders for uploads, clips and transcripts plus the
//     optional clip archive bucket.
//   - Database: the sqlite database holding videos and clips.
//   - Transcription: whisper.cpp binary, model artifact and decoding options.
//   - Transcoder: ffmpeg rendering parameters for title cards and captions.
//   - PromptTemplates: text/template sources for language model prompts.
//   - VertexAiLLMModel: a named generative model and its rate limit.
//   - TopicSubscription: a Pub/Sub subscription that triggers processing.
//   - BigQueryDataSource: the optional clip catalog.
//   - Config: the root of all of the above.
package cloud

import "google.golang.org/genai"

// GenAI backends accepted by Application.GenAIBackend.
const (
	GenAIBackendVertex    = "vertex"
	GenAIBackendGeminiAPI = "gemini-api"
)

// Telemetry exporters accepted by Application.TelemetryExporter.
const (
	TelemetryExporterGCP  = "gcp"
	TelemetryExporterNone = "none"
)

// HighlightModelName is the logical agent model used for highlight extraction.
const HighlightModelName = "highlight-flash"

// UploadTopicName is the logical subscription that delivers upload notifications.
const UploadTopicName = "UploadTopic"

// DefaultSafetySettings disables blocking for all harm categories. Transcripts
// are user content and a blocked answer would silently drop every highlight.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Application holds process-wide settings.
type Application struct {
	Name                      string `toml:"name" validate:"required"`
	GoogleProjectId           string `toml:"google_project_id"`
	GoogleLocation            string `toml:"location"`
	ListenAddress             string `toml:"listen_address" validate:"required"`
	ThreadPoolSize            int    `toml:"thread_pool_size" validate:"min=1"`         // job runner workers and per-run render workers
	JobQueueSize              int    `toml:"job_queue_size" validate:"min=1"`           // pending runs before uploads are refused
	GenAIBackend              string `toml:"genai_backend" validate:"oneof=vertex gemini-api"`
	GoogleAPIKey              string `toml:"google_api_key"`                            // overridden by GOOGLE_API_KEY
	TelemetryExporter         string `toml:"telemetry_exporter" validate:"oneof=gcp none"`
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	StaleRunGraceSeconds      int    `toml:"stale_run_grace_seconds" validate:"min=0"`
	StaleRunSweepSeconds      int    `toml:"stale_run_sweep_seconds" validate:"min=0"` // 0 sweeps only at startup
}

// Storage holds the local folder layout and the optional archive bucket.
type Storage struct {
	UploadFolder      string   `toml:"upload_folder" validate:"required"`
	ClipsFolder       string   `toml:"clips_folder" validate:"required"`
	TranscriptsFolder string   `toml:"transcripts_folder" validate:"required"`
	MaxUploadBytes    int64    `toml:"max_upload_bytes" validate:"min=1"`
	AllowedExtensions []string `toml:"allowed_extensions" validate:"min=1,dive,required"`
	ClipBucket        string   `toml:"clip_bucket"`        // empty disables clip archiving
	ClipArchivePrefix string   `toml:"clip_archive_prefix"` // object prefix inside ClipBucket
}

// Database points at the sqlite file holding videos and clips.
type Database struct {
	Path            string `toml:"path" validate:"required"`
	MaxOpenConns    int    `toml:"max_open_conns" validate:"min=0"`
	BusyTimeoutMsec int    `toml:"busy_timeout_msec" validate:"min=0"`
}

// Transcription configures the whisper.cpp speech-to-text adapter.
type Transcription struct {
	Command           string `toml:"command" validate:"required"`
	Model             string `toml:"model" validate:"required"`
	ModelDir          string `toml:"model_dir"`
	ModelURL          string `toml:"model_url"` // %s is replaced by Model
	Language          string `toml:"language" validate:"required"`
	BeamSize          int    `toml:"beam_size" validate:"min=1"`
	BestOf            int    `toml:"best_of" validate:"min=1"`
	Threads           int    `toml:"threads" validate:"min=0"`
	UseGPU            bool   `toml:"use_gpu"`
	LoadAttempts      int    `toml:"load_attempts" validate:"min=1"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds" validate:"min=0"`
}

// Transcoder configures clip rendering.
type Transcoder struct {
	FontFile            string  `toml:"font_file" validate:"required"`
	TitleCardSize       string  `toml:"title_card_size" validate:"required"`
	TitleCardColor      string  `toml:"title_card_color" validate:"required"`
	TitleCardSeconds    float64 `toml:"title_card_seconds" validate:"gt=0"`
	FontSize            int     `toml:"font_size" validate:"min=1"`
	CaptionBorderWidth  int     `toml:"caption_border_width" validate:"min=0"`
	CaptionBottomOffset int     `toml:"caption_bottom_offset" validate:"min=0"`
	LeadInSeconds       float64 `toml:"lead_in_seconds" validate:"min=0"`
	WindowSeconds       float64 `toml:"window_seconds" validate:"gt=0"`
	MaxHighlights       int     `toml:"max_highlights" validate:"min=1"`
	ClampToDuration     bool    `toml:"clamp_to_duration"`
}

// PromptTemplates holds text/template sources sent to the language model.
type PromptTemplates struct {
	HighlightPrompt string `toml:"highlight" validate:"required"`
}

// VertexAiLLMModel is a named generative model configuration.
type VertexAiLLMModel struct {
	Model              string  `toml:"model" validate:"required"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit" validate:"min=1"` // requests per second
}

// TopicSubscription is a Pub/Sub subscription to listen on.
type TopicSubscription struct {
	Name             string `toml:"name" validate:"required"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds" validate:"min=0"` // max ack extension while a message is processed
}

// BigQueryDataSource is the optional clip catalog. An empty DatasetName
// disables it.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`
	ClipTable   string `toml:"clip_table"`
}

// Config is the root configuration.
type Config struct {
	Application        Application                  `toml:"application"`
	Storage            Storage                      `toml:"storage"`
	Database           Database                     `toml:"database"`
	Transcription      Transcription                `toml:"transcription"`
	Transcoder         Transcoder                   `toml:"transcoder"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions" validate:"dive"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models" validate:"required,dive"`
}

// NewConfig returns a Config with its maps initialised so TOML decoding can
// populate them.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}

// ClipArchiveEnabled reports whether rendered clips are copied to Cloud Storage.
func (c *Config) ClipArchiveEnabled() bool {
	return c.Storage.ClipBucket != ""
}

// ClipCatalogEnabled reports whether clip rows are mirrored to BigQuery.
func (c *Config) ClipCatalogEnabled() bool {
	return c.BigQueryDataSource.DatasetName != "" && c.BigQueryDataSource.ClipTable != ""
}

// UploadTriggerEnabled reports whether uploads also arrive through Pub/Sub.
func (c *Config) UploadTriggerEnabled() bool {
	_, ok := c.TopicSubscriptions[UploadTopicName]
	return ok
}
