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
	"sync"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrQueueFull     = errors.New("job queue is full")
	ErrRunnerStopped = errors.New("job runner is shut down")
)

// JobHandler runs one job to completion. VideoProcessor.Run is the handler
// used by the server.
type JobHandler func(ctx goctx.Context, job model.ProcessingJob) model.RunResult

// JobRunner runs jobs on a fixed number of workers fed by a bounded queue.
// Submit never blocks. Jobs run on the runner's own context, so they outlive
// the request that submitted them and stop only on Shutdown.
type JobRunner struct {
	handler JobHandler
	jobs    chan model.ProcessingJob
	ctx     goctx.Context
	cancel  goctx.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[uint]int
	closed bool

	completed metric.Int64Counter
	failed    metric.Int64Counter
	rejected  metric.Int64Counter
}

func NewJobRunner(ctx goctx.Context, workers int, queueSize int, handler JobHandler) *JobRunner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	runCtx, cancel := goctx.WithCancel(ctx)
	meter := otel.Meter(cor.MeterName)
	r := &JobRunner{
		handler: handler,
		jobs:    make(chan model.ProcessingJob, queueSize),
		ctx:     runCtx,
		cancel:  cancel,
		active:  make(map[uint]int),
	}
	r.completed, _ = meter.Int64Counter("job-runner.counter.completed")
	r.failed, _ = meter.Int64Counter("job-runner.counter.failed")
	r.rejected, _ = meter.Int64Counter("job-runner.counter.rejected")

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	return r
}

// Submit queues job. It returns ErrQueueFull when every queue slot is taken
// and ErrRunnerStopped after Shutdown.
func (r *JobRunner) Submit(job model.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerStopped
	}
	select {
	case r.jobs <- job:
		r.active[job.VideoID]++
		return nil
	default:
		r.rejected.Add(r.ctx, 1)
		return ErrQueueFull
	}
}

// Active reports whether a job for videoID is queued or running.
func (r *JobRunner) Active(videoID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[videoID] > 0
}

// Pending is the number of queued jobs not yet picked up by a worker.
func (r *JobRunner) Pending() int {
	return len(r.jobs)
}

func (r *JobRunner) worker(id int) {
	defer r.wg.Done()
	for job := range r.jobs {
		r.runJob(id, job)
	}
}

func (r *JobRunner) runJob(worker int, job model.ProcessingJob) {
	defer r.release(job.VideoID)
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(r.ctx, 1)
			slog.Error("job handler panicked", "worker", worker, "video_id", job.VideoID, "panic", p)
		}
	}()

	result := r.handler(r.ctx, job)
	attrs := metric.WithAttributes(attribute.String("kind", result.Kind.String()))
	if result.OK() {
		r.completed.Add(r.ctx, 1, attrs)
		slog.Info("job finished", "worker", worker, "video_id", job.VideoID, "clips", result.Clips)
		return
	}
	r.failed.Add(r.ctx, 1, attrs)
	slog.Warn("job failed", "worker", worker, "video_id", job.VideoID, "status", result.Status())
}

func (r *JobRunner) release(videoID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[videoID] <= 1 {
		delete(r.active, videoID)
		return
	}
	r.active[videoID]--
}

// Shutdown stops intake and waits for queued and running jobs. If ctx ends
// first the running jobs are cancelled and ctx.Err() is returned once they
// have returned.
func (r *JobRunner) Shutdown(ctx goctx.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
