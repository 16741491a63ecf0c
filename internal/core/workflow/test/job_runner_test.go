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

package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedHandler reports each job it starts and holds it until release is
// closed.
type gatedHandler struct {
	started chan uint
	release chan struct{}
}

func newGatedHandler() *gatedHandler {
	return &gatedHandler{started: make(chan uint, 16), release: make(chan struct{})}
}

func (g *gatedHandler) Handle(ctx context.Context, job model.ProcessingJob) model.RunResult {
	g.started <- job.VideoID
	select {
	case <-g.release:
		return model.Succeeded(0)
	case <-ctx.Done():
		return model.Failed(model.FailureUnexpected, ctx.Err())
	}
}

func waitStarted(t *testing.T, started <-chan uint) uint {
	t.Helper()
	select {
	case id := <-started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
		return 0
	}
}

func TestJobRunnerRejectsWhenQueueIsFull(t *testing.T) {
	handler := newGatedHandler()
	runner := workflow.NewJobRunner(ctx, 1, 1, handler.Handle)

	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 1}))
	assert.Equal(t, uint(1), waitStarted(t, handler.started))

	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 2}))
	err := runner.Submit(model.ProcessingJob{VideoID: 3})
	assert.ErrorIs(t, err, workflow.ErrQueueFull)

	assert.True(t, runner.Active(1))
	assert.True(t, runner.Active(2))
	assert.False(t, runner.Active(3))
	assert.Equal(t, 1, runner.Pending())

	close(handler.release)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))

	assert.False(t, runner.Active(1))
	assert.False(t, runner.Active(2))
	assert.ErrorIs(t, runner.Submit(model.ProcessingJob{VideoID: 4}), workflow.ErrRunnerStopped)
}

func TestJobRunnerRunsJobsConcurrently(t *testing.T) {
	handler := newGatedHandler()
	runner := workflow.NewJobRunner(ctx, 2, 2, handler.Handle)

	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 1}))
	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 2}))

	// both start before either is released
	got := map[uint]bool{waitStarted(t, handler.started): true, waitStarted(t, handler.started): true}
	assert.Equal(t, map[uint]bool{1: true, 2: true}, got)

	close(handler.release)
	require.NoError(t, runner.Shutdown(ctx))
}

func TestJobRunnerShutdownDeadlineCancelsRuns(t *testing.T) {
	handler := newGatedHandler()
	results := make(chan model.RunResult, 1)
	runner := workflow.NewJobRunner(ctx, 1, 1, func(c context.Context, job model.ProcessingJob) model.RunResult {
		r := handler.Handle(c, job)
		results <- r
		return r
	})

	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 9}))
	waitStarted(t, handler.started)

	shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := runner.Shutdown(shutdownCtx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	r := <-results
	assert.Equal(t, model.FailureUnexpected, r.Kind)
	assert.ErrorIs(t, r, context.Canceled)
}

func TestJobRunnerSurvivesHandlerPanic(t *testing.T) {
	done := make(chan uint, 2)
	runner := workflow.NewJobRunner(ctx, 1, 2, func(_ context.Context, job model.ProcessingJob) model.RunResult {
		defer func() { done <- job.VideoID }()
		if job.VideoID == 1 {
			panic("handler bug")
		}
		return model.Succeeded(1)
	})

	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 1}))
	require.NoError(t, runner.Submit(model.ProcessingJob{VideoID: 2}))
	assert.Equal(t, uint(1), <-done)
	assert.Equal(t, uint(2), <-done)
	require.NoError(t, runner.Shutdown(ctx))
}

func TestJobRunnerWithProcessor(t *testing.T) {
	h := newHarness(t)
	job := h.upload(t, "talk.mp4")

	runner := workflow.NewJobRunner(ctx, 2, 4, h.processor(t).Run)
	require.NoError(t, runner.Submit(job))

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, runner.Shutdown(shutdownCtx))

	video, err := h.videos.GetVideo(ctx, job.VideoID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, video.Status)
}
