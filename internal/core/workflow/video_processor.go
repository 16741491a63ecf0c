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

package workflow

import (
	goctx "context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClipProcessor is the "process" unit of a run. HighlightClipWorkflow
// implements it.
type ClipProcessor interface {
	Process(ctx goctx.Context, videoID uint, source string) ([]*model.RenderedClip, error)
}

// ClipExporter receives the persisted clips of a processed video. Export
// errors are logged and never change the video status.
type ClipExporter interface {
	Export(ctx goctx.Context, video *model.Video, clips []*model.Clip) error
}

// VideoProcessor drives one video through
// uploaded → initializing → transcribing → saving_clips → processed, and
// records "error: <kind>: <cause>" on the first failure.
type VideoProcessor struct {
	repo        services.VideoRepository
	transcriber commands.Transcriber
	pipeline    ClipProcessor
	exporter    ClipExporter
	tracer      trace.Tracer
}

func NewVideoProcessor(repo services.VideoRepository, transcriber commands.Transcriber, pipeline ClipProcessor) *VideoProcessor {
	return &VideoProcessor{
		repo:        repo,
		transcriber: transcriber,
		pipeline:    pipeline,
		tracer:      otel.Tracer("video-processor"),
	}
}

// SetExporter enables the post-processing export of clips.
func (p *VideoProcessor) SetExporter(exporter ClipExporter) {
	p.exporter = exporter
}

// Run processes job on a dedicated database connection and returns the
// outcome, which has already been written to the video's status.
func (p *VideoProcessor) Run(ctx goctx.Context, job model.ProcessingJob) (result model.RunResult) {
	spanCtx, span := p.tracer.Start(ctx, "process-video")
	span.SetAttributes(attribute.Int64("video_id", int64(job.VideoID)), attribute.String("file", job.FilePath))
	defer func() {
		if result.OK() {
			span.SetStatus(codes.Ok, "processed")
		} else {
			span.SetStatus(codes.Error, result.Status())
		}
		span.End()
	}()

	var video *model.Video
	var clips []*model.Clip
	err := p.repo.WithConnection(spanCtx, func(repo services.VideoRepository) error {
		result, video, clips = p.guardedRun(spanCtx, repo, job)
		return nil
	})
	if err != nil {
		result = model.Failed(model.FailureUnexpected, fmt.Errorf("could not acquire database connection: %w", err))
		p.recordFailure(spanCtx, p.repo, job.VideoID, result)
		return result
	}

	if result.OK() && p.exporter != nil && video != nil {
		if err := p.exporter.Export(spanCtx, video, clips); err != nil {
			slog.WarnContext(spanCtx, "clip export failed", "video_id", job.VideoID, "error", err)
		}
	}
	return result
}

// guardedRun turns a panic anywhere in the run into an unexpected failure.
func (p *VideoProcessor) guardedRun(ctx goctx.Context, repo services.VideoRepository, job model.ProcessingJob) (result model.RunResult, video *model.Video, clips []*model.Clip) {
	defer func() {
		if r := recover(); r != nil {
			result = model.Failed(model.FailureUnexpected, fmt.Errorf("panic: %v", r))
			p.recordFailure(ctx, repo, job.VideoID, result)
		}
	}()

	clips, result = p.run(ctx, repo, job)
	if !result.OK() {
		p.recordFailure(ctx, repo, job.VideoID, result)
		return result, nil, nil
	}
	video, err := repo.GetVideo(ctx, job.VideoID)
	if err != nil {
		slog.WarnContext(ctx, "processed video could not be reloaded", "video_id", job.VideoID, "error", err)
	}
	return result, video, clips
}

func (p *VideoProcessor) run(ctx goctx.Context, repo services.VideoRepository, job model.ProcessingJob) ([]*model.Clip, model.RunResult) {
	if err := repo.UpdateStatus(ctx, job.VideoID, model.StatusInitializing); err != nil {
		return nil, model.Failed(model.FailureUnexpected, err)
	}
	if err := p.transcriber.LoadModel(ctx); err != nil {
		return nil, model.Failed(model.FailureInitialization, err)
	}

	if err := repo.UpdateStatus(ctx, job.VideoID, model.StatusTranscribing); err != nil {
		return nil, model.Failed(model.FailureUnexpected, err)
	}
	rendered, err := p.pipeline.Process(ctx, job.VideoID, job.FilePath)
	if err != nil {
		return nil, model.Failed(model.FailureProcessing, err)
	}

	if err := repo.UpdateStatus(ctx, job.VideoID, model.StatusSavingClips); err != nil {
		return nil, model.Failed(model.FailureUnexpected, err)
	}
	clips := make([]*model.Clip, 0, len(rendered))
	for _, r := range rendered {
		clip := r.ToClip(job.VideoID)
		if err := repo.SaveClip(ctx, clip); err != nil {
			return nil, model.Failed(model.FailureSaveClip, err)
		}
		clips = append(clips, clip)
	}

	if err := repo.UpdateStatus(ctx, job.VideoID, model.StatusProcessed); err != nil {
		return nil, model.Failed(model.FailureUnexpected, err)
	}
	slog.InfoContext(ctx, "video processed", "video_id", job.VideoID, "clips", len(clips))
	return clips, model.Succeeded(len(clips))
}

// recordFailure writes the error status. It ignores cancellation of ctx so a
// run interrupted by shutdown still leaves a terminal status behind.
func (p *VideoProcessor) recordFailure(ctx goctx.Context, repo services.VideoRepository, videoID uint, result model.RunResult) {
	slog.ErrorContext(ctx, "video processing failed", "video_id", videoID, "kind", result.Kind.String(), "error", result.Cause)
	if err := repo.UpdateStatus(goctx.WithoutCancel(ctx), videoID, result.Status()); err != nil {
		slog.ErrorContext(ctx, "could not record failure status", "video_id", videoID, "error", err)
	}
}
