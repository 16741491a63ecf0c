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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/api"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/workflow"
	"gorm.io/gorm"
)

// signedURLLifetime is how long a dashboard archive link stays valid.
const signedURLLifetime = 15 * time.Minute

// StateManager holds the components of a running server.
type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	db        *gorm.DB
	videos    *services.VideoService
	uploads   *services.UploadStore
	runner    *workflow.JobRunner
	intake    *workflow.VideoIntake
	reaper    *workflow.StaleRunReaper
	handlers  *api.Handlers
	listeners []*cloud.PubSubListener
}

// SetupOS points the configuration loader at configDir and runtime. Empty
// values leave the environment as it is.
func SetupOS(configDir string, runtime string) error {
	if configDir != "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
			return err
		}
	}
	if runtime != "" {
		return os.Setenv(cloud.EnvConfigRuntime, runtime)
	}
	return nil
}

// GetConfig loads, overrides and validates the configuration.
func GetConfig(opts *rootOptions) (*cloud.Config, error) {
	if err := SetupOS(opts.configDir, opts.runtime); err != nil {
		return nil, fmt.Errorf("failed to setup environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := cloud.ApplyEnvironment(config, opts.envFiles...); err != nil {
		return nil, err
	}
	if err := cloud.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ensureFolders creates the local storage layout.
func ensureFolders(config *cloud.Config) error {
	for _, dir := range []string{config.Storage.UploadFolder, config.Storage.ClipsFolder, config.Storage.TranscriptsFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// NewPipeline builds the whisper transcriber and the highlight clip workflow
// on top of it.
func NewPipeline(config *cloud.Config, clients *cloud.ServiceClients) (*commands.WhisperTranscriber, *workflow.HighlightClipWorkflow, error) {
	generator, err := clients.HighlightGenerator()
	if err != nil {
		return nil, nil, err
	}
	transcriber := commands.NewWhisperTranscriber(config.Transcription)
	pipeline, err := workflow.NewHighlightClipWorkflow(config, transcriber, generator, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return transcriber, pipeline, nil
}

// newClipExport wires the configured clip export targets. Targets that are
// not configured stay nil. recorder keeps the archive records the dashboard
// signs URLs from.
func newClipExport(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients, recorder commands.ArchiveRecorder) (*workflow.ClipExportWorkflow, *services.ClipCatalogService) {
	var writer commands.BlobWriterFactory
	if config.ClipArchiveEnabled() {
		writer = commands.GCSBlobWriter(clients.StorageClient)
	}

	var inserter commands.RowInserter
	var catalog *services.ClipCatalogService
	if config.ClipCatalogEnabled() {
		catalog = &services.ClipCatalogService{
			BigqueryClient: clients.BiqQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			ClipTable:      config.BigQueryDataSource.ClipTable,
		}
		if err := catalog.EnsureTable(ctx); err != nil {
			slog.Warn("clip catalog table is not ready; inserts may fail", "table", catalog.GetFQN(), "error", err)
		}
		inserter = catalog.Inserter()
	}
	return workflow.NewClipExportWorkflow(config, writer, recorder, inserter), catalog
}

// InitState creates every component the server needs. Runs are not tied to
// ctx; they are drained by Close.
func InitState(ctx context.Context, config *cloud.Config) (state *StateManager, err error) {
	if err := ensureFolders(config); err != nil {
		return nil, err
	}

	state = &StateManager{config: config}
	defer func() {
		if err != nil {
			err = errors.Join(err, state.Close(context.Background()))
			state = nil
		}
	}()

	if state.cloud, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
		return state, err
	}
	if state.db, err = services.OpenDatabase(config.Database); err != nil {
		return state, err
	}
	state.videos = services.NewVideoService(state.db)
	state.uploads = services.NewUploadStore(config.Storage.UploadFolder, config.Storage.AllowedExtensions, config.Storage.MaxUploadBytes)

	transcriber, pipeline, err := NewPipeline(config, state.cloud)
	if err != nil {
		return state, err
	}
	processor := workflow.NewVideoProcessor(state.videos, transcriber, pipeline)
	export, catalog := newClipExport(ctx, config, state.cloud, state.videos)
	if export.Enabled() {
		processor.SetExporter(export)
	}

	state.runner = workflow.NewJobRunner(context.WithoutCancel(ctx), config.Application.ThreadPoolSize, config.Application.JobQueueSize, processor.Run)
	state.intake = workflow.NewVideoIntake(state.videos, state.runner)
	state.reaper = workflow.NewStaleRunReaper(config, state.videos, state.runner)

	state.handlers = &api.Handlers{
		Videos:      state.videos,
		Intake:      state.intake,
		Uploads:     state.uploads,
		ClipsFolder: config.Storage.ClipsFolder,
	}
	if config.ClipArchiveEnabled() {
		state.handlers.Archives = state.videos
		state.handlers.Signer = &services.ArchiveService{
			StorageClient: state.cloud.StorageClient,
			IAMClient:     state.cloud.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Expires:       signedURLLifetime,
		}
	}
	if catalog != nil {
		state.handlers.Catalog = catalog
	}
	return state, nil
}

// Close waits for the listeners, drains the job runner within ctx and
// releases the database and cloud clients.
func (s *StateManager) Close(ctx context.Context) error {
	for _, l := range s.listeners {
		select {
		case <-l.Done():
		case <-ctx.Done():
		}
	}
	var err error
	if s.runner != nil {
		err = errors.Join(err, s.runner.Shutdown(ctx))
	}
	if s.db != nil {
		err = errors.Join(err, services.CloseDatabase(s.db))
	}
	if s.cloud != nil {
		err = errors.Join(err, s.cloud.Close())
	}
	return err
}
