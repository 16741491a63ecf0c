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
// This file builds the ServiceClients container at startup.
//
// Logic Flow:
//  1. The GenAI client is always created; highlight extraction needs it.
//  2. Cloud Storage is created when clip archiving or the upload trigger is
//     configured, BigQuery when the clip catalog is configured, Pub/Sub when
//     any topic subscription is configured, and the IAM credentials client
//     when a signer service account is configured.
//  3. Agent models are wrapped in QuotaAwareGenerativeAIModel.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds every external client. Optional clients are nil when
// their feature is not configured.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BiqQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client that was created.
func (c *ServiceClients) Close() error {
	var err error
	if c.StorageClient != nil {
		err = errors.Join(err, c.StorageClient.Close())
	}
	if c.PubsubClient != nil {
		err = errors.Join(err, c.PubsubClient.Close())
	}
	if c.BiqQueryClient != nil {
		err = errors.Join(err, c.BiqQueryClient.Close())
	}
	if c.IAMClient != nil {
		err = errors.Join(err, c.IAMClient.Close())
	}
	return err
}

// HighlightGenerator returns the text generator for highlight extraction.
func (c *ServiceClients) HighlightGenerator() (*GeminiTextGenerator, error) {
	model, ok := c.AgentModels[HighlightModelName]
	if !ok || model == nil {
		return nil, fmt.Errorf("agent model %q is not configured", HighlightModelName)
	}
	return NewGeminiTextGenerator(HighlightModelName, model), nil
}

// NewGenAIClientConfig selects Vertex AI or the Gemini API from config.
func NewGenAIClientConfig(config *Config) *genai.ClientConfig {
	if config.Application.GenAIBackend == GenAIBackendGeminiAPI {
		return &genai.ClientConfig{
			APIKey:  config.Application.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}
	return &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
}

// NewAgentModels wraps every configured agent model around handle.
func NewAgentModels(config *Config, handle ContentGenerator) map[string]*QuotaAwareGenerativeAIModel {
	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for amKey, values := range config.AgentModels {
		generation := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](values.Temperature),
			TopP:            genai.Ptr[float32](values.TopP),
			TopK:            genai.Ptr[float32](values.TopK),
			MaxOutputTokens: values.MaxTokens,
			SafetySettings:  DefaultSafetySettings,
		}
		if values.SystemInstructions != "" {
			generation.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
		}
		if values.OutputFormat != "" {
			generation.ResponseMIMEType = values.OutputFormat
		}
		agentModels[amKey] = NewQuotaAwareModel(generation, values.Model, handle, values.RateLimit)
	}
	return agentModels
}

// NewCloudServiceClients creates the clients config asks for.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{PubSubListeners: make(map[string]*PubSubListener)}
	defer func() {
		if err != nil {
			_ = cloud.Close()
			cloud = nil
		}
	}()

	gc, err := genai.NewClient(ctx, NewGenAIClientConfig(config))
	if err != nil {
		return cloud, fmt.Errorf("error creating genai client: %w", err)
	}
	cloud.GenAIClient = gc
	cloud.AgentModels = NewAgentModels(config, gc.Models)

	if config.ClipArchiveEnabled() || config.UploadTriggerEnabled() {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			return cloud, fmt.Errorf("error creating storage client: %w", err)
		}
	}

	if config.ClipCatalogEnabled() {
		if cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("error creating bigquery client: %w", err)
		}
	}

	if config.Application.SignerServiceAccountEmail != "" {
		if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
			return cloud, fmt.Errorf("error creating iam credentials client: %w", err)
		}
	}

	if len(config.TopicSubscriptions) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return cloud, fmt.Errorf("error creating pubsub client: %w", err)
		}
		for subKey, values := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if err != nil {
				return cloud, err
			}
			if values.TimeoutInSeconds > 0 {
				listener.SetMaxExtension(time.Duration(values.TimeoutInSeconds) * time.Second)
			}
			cloud.PubSubListeners[subKey] = listener
		}
	}

	slog.Info("cloud clients ready",
		"genai_backend", config.Application.GenAIBackend,
		"storage", cloud.StorageClient != nil,
		"bigquery", cloud.BiqQueryClient != nil,
		"pubsub", cloud.PubsubClient != nil)
	return cloud, nil
}
