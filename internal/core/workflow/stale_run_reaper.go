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
	"errors"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// ErrRunInterrupted is the cause recorded on videos left behind by a run
// that no longer exists, typically after a restart.
var ErrRunInterrupted = errors.New("processing interrupted")

// ActivityTracker reports whether a video still has a queued or running job.
type ActivityTracker interface {
	Active(videoID uint) bool
}

// StaleRunReaper marks unfinished videos that have no live job as failed.
// Its output is the number of videos it marked.
type StaleRunReaper struct {
	cor.BaseCommand
	repo     services.VideoRepository
	runner   ActivityTracker
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewStaleRunReaper(config *cloud.Config, repo services.VideoRepository, runner ActivityTracker) *StaleRunReaper {
	return &StaleRunReaper{
		BaseCommand: *cor.NewBaseCommand("stale-run-reaper"),
		repo:        repo,
		runner:      runner,
		grace:       time.Duration(config.Application.StaleRunGraceSeconds) * time.Second,
		interval:    time.Duration(config.Application.StaleRunSweepSeconds) * time.Second,
		now:         time.Now,
	}
}

func (s *StaleRunReaper) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

func (s *StaleRunReaper) Execute(context cor.Context) {
	ctx := context.GetContext()
	videos, err := s.repo.ListUnfinished(ctx, s.now().Add(-s.grace))
	if err != nil {
		s.Fail(context, err)
		return
	}

	status := model.Failed(model.FailureUnexpected, ErrRunInterrupted).Status()
	reaped := 0
	for _, v := range videos {
		if s.runner != nil && s.runner.Active(v.ID) {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, v.ID, status); err != nil {
			s.Fail(context, err)
			return
		}
		slog.WarnContext(ctx, "marked stale run as failed", "video_id", v.ID, "previous_status", v.Status)
		reaped++
	}
	s.Succeed(context, reaped)
}

// Sweep runs the reaper once and returns how many videos it marked.
func (s *StaleRunReaper) Sweep(ctx goctx.Context) (int, error) {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	s.Execute(chainCtx)
	if err := chainCtx.FirstError(); err != nil {
		return 0, err
	}
	reaped, _ := chainCtx.Get(s.GetOutputParam()).(int)
	return reaped, nil
}

// StartTimer sweeps once and then on every interval until ctx is done. With a
// zero interval only the first sweep runs.
func (s *StaleRunReaper) StartTimer(ctx goctx.Context) {
	tracer := otel.Tracer("stale-run-batch")
	sweep := func() {
		traceCtx, span := tracer.Start(ctx, "stale-run-sweep")
		defer span.End()
		if n, err := s.Sweep(traceCtx); err != nil {
			span.SetStatus(codes.Error, "failed to sweep stale runs")
			slog.ErrorContext(traceCtx, "stale run sweep failed", "error", err)
		} else {
			span.SetStatus(codes.Ok, "swept stale runs")
			if n > 0 {
				slog.InfoContext(traceCtx, "stale run sweep", "reaped", n)
			}
		}
	}

	sweep()
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
