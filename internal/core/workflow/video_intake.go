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
	"path/filepath"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
)

// JobSubmitter queues a processing job without blocking.
type JobSubmitter interface {
	Submit(job model.ProcessingJob) error
}

// VideoIntake registers a stored upload as a Video and queues its run.
type VideoIntake struct {
	repo   services.VideoRepository
	runner JobSubmitter
}

func NewVideoIntake(repo services.VideoRepository, runner JobSubmitter) *VideoIntake {
	return &VideoIntake{repo: repo, runner: runner}
}

// Enqueue creates the Video row for the file at path and submits its job.
// When the job cannot be queued the video is left with an unexpected-error
// status and returned together with the submit error.
func (i *VideoIntake) Enqueue(ctx goctx.Context, path string) (*model.Video, error) {
	video, err := i.repo.CreateVideo(ctx, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	err = i.runner.Submit(model.ProcessingJob{VideoID: video.ID, FilePath: path})
	if err == nil {
		slog.InfoContext(ctx, "video queued", "video_id", video.ID, "file", path)
		return video, nil
	}

	video.Status = model.Failed(model.FailureUnexpected, err).Status()
	if statusErr := i.repo.UpdateStatus(ctx, video.ID, video.Status); statusErr != nil {
		return video, errors.Join(err, statusErr)
	}
	slog.WarnContext(ctx, "video rejected", "video_id", video.ID, "error", err)
	return video, err
}
