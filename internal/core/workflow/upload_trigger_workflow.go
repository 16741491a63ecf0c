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
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
)

// EnqueueUpload is the last step of the upload trigger: local path in, queued
// *model.Video out under GetVideoParameterName. A full queue is not a command
// failure; the video already carries the error status and redelivering the
// message would only download the object again.
type EnqueueUpload struct {
	cor.BaseCommand
	intake *VideoIntake
}

func NewEnqueueUpload(name string, intake *VideoIntake) *EnqueueUpload {
	out := &EnqueueUpload{BaseCommand: *cor.NewBaseCommand(name), intake: intake}
	out.OutputParamName = commands.GetVideoParameterName()
	return out
}

func (e *EnqueueUpload) Execute(context cor.Context) {
	path, ok := context.Get(e.GetInputParam()).(string)
	if !ok {
		e.Fail(context, fmt.Errorf("expected upload path, got %T", context.Get(e.GetInputParam())))
		return
	}

	video, err := e.intake.Enqueue(context.GetContext(), path)
	switch {
	case err == nil:
		e.Succeed(context, video)
	case video != nil && (errors.Is(err, ErrQueueFull) || errors.Is(err, ErrRunnerStopped)):
		slog.WarnContext(context.GetContext(), "triggered upload not queued", "video_id", video.ID, "error", err)
		e.Succeed(context, video)
	default:
		e.Fail(context, err)
	}
}

// UploadTriggerWorkflow handles a Cloud Storage notification on the upload
// topic: decode, download into the uploads folder, create and queue the
// video.
type UploadTriggerWorkflow struct {
	cor.BaseCommand
	config *cloud.Config
	open   commands.BlobReaderFactory
	store  commands.UploadSaver
	intake *VideoIntake
	chain  cor.Chain
}

func (u *UploadTriggerWorkflow) Execute(context cor.Context) {
	u.chain.Execute(context)
}

func (u *UploadTriggerWorkflow) initializeChain() {
	out := cor.NewBaseChain(u.GetName())
	out.AddCommand(commands.NewMediaTriggerToGCSObject("upload-trigger-to-gcs-object", u.config.Storage.AllowedExtensions))
	out.AddCommand(commands.NewGCSToUploadFolder("gcs-to-upload-folder", u.open, u.store))
	out.AddCommand(NewEnqueueUpload("enqueue-upload", u.intake))
	u.chain = out
}

func NewUploadTriggerWorkflow(
	config *cloud.Config,
	open commands.BlobReaderFactory,
	store commands.UploadSaver,
	intake *VideoIntake) *UploadTriggerWorkflow {

	out := &UploadTriggerWorkflow{
		BaseCommand: *cor.NewBaseCommand("upload-trigger-pipeline"),
		config:      config,
		open:        open,
		store:       store,
		intake:      intake,
	}
	out.initializeChain()
	return out
}
