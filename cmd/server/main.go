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

// Command server runs the highlight clipper.
//
//	server serve            start the HTTP server, job runner and listeners
//	server process <file>   render the highlights of a local video and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/api"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/telemetry"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

type rootOptions struct {
	configDir string
	runtime   string
	envFiles  []string
	logFile   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "server",
		Short:        "Turn uploaded videos into captioned highlight clips",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "configs", "directory holding .env.toml and .env.<runtime>.toml")
	root.PersistentFlags().StringVar(&opts.runtime, "runtime", os.Getenv(cloud.EnvConfigRuntime), "configuration runtime, e.g. local or prod")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files with secrets (default .env)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write logs to this file")

	root.AddCommand(newServeCommand(opts), newProcessCommand(opts))
	return root
}

// bootstrap sets up logging, configuration and telemetry shared by every
// subcommand. The returned func flushes telemetry and closes the log file.
func bootstrap(ctx context.Context, opts *rootOptions) (*cloud.Config, func(context.Context) error, error) {
	closeLog, err := telemetry.SetupLogging(opts.logFile)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Logging initialized")

	config, err := GetConfig(opts)
	if err != nil {
		return nil, nil, errors.Join(err, closeLog())
	}

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to setup OpenTelemetry: %w", err), closeLog())
	}
	slog.Info("Tracing initialized", "exporter", config.Application.TelemetryExporter)

	return config, func(ctx context.Context) error {
		return errors.Join(shutdownTelemetry(ctx), closeLog())
	}, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) (err error) {
	config, shutdownTelemetry, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}

	state, err := InitState(ctx, config)
	if err != nil {
		return errors.Join(err, shutdownTelemetry(context.Background()))
	}
	slog.Info("Initialized State")

	state.reaper.StartTimer(ctx)
	SetupListeners(ctx, state)

	srv := &http.Server{
		Addr:    config.Application.ListenAddress,
		Handler: api.NewRouter(config.Application.Name, state.handlers),
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	slog.Info("Server ready", "address", config.Application.ListenAddress)

	select {
	case <-ctx.Done():
		slog.Info("Shutdown Server ...")
	case err = <-serverErr:
		slog.Error("failed to listen", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = errors.Join(err,
		srv.Shutdown(shutdownCtx),
		state.Close(shutdownCtx),
		shutdownTelemetry(shutdownCtx))
	slog.Info("Server exiting")
	return err
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Render the highlight clips of a local video without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return process(ctx, opts, args[0], cmd.OutOrStdout())
		},
	}
}

func process(ctx context.Context, opts *rootOptions, source string, out io.Writer) (err error) {
	if _, err := os.Stat(source); err != nil {
		return err
	}
	config, shutdownTelemetry, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdownTelemetry(context.Background()))
	}()
	if err := ensureFolders(config); err != nil {
		return err
	}

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, clients.Close())
	}()

	transcriber, pipeline, err := NewPipeline(config, clients)
	if err != nil {
		return err
	}
	if err := transcriber.LoadModel(ctx); err != nil {
		return err
	}
	clips, err := pipeline.Process(ctx, 0, source)
	if err != nil {
		return err
	}

	for i, clip := range clips {
		if _, err := fmt.Fprintf(out, "%d\t%s\t%s\n", i+1, clip.Path, clip.Highlight); err != nil {
			return err
		}
	}
	slog.Info("processing complete", "source", source, "clips", len(clips))
	return nil
}
