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
	"log/slog"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/workflow"
)

// SetupListeners attaches the upload trigger workflow to the UploadTopic
// subscription and starts receiving. Objects finalized in the watched bucket
// are downloaded into the uploads folder and queued like browser uploads.
func SetupListeners(ctx context.Context, state *StateManager) {
	listener, ok := state.cloud.PubSubListeners[cloud.UploadTopicName]
	if !ok {
		return
	}
	if state.cloud.StorageClient == nil {
		slog.Warn("upload trigger configured without a storage client; not listening")
		return
	}

	trigger := workflow.NewUploadTriggerWorkflow(
		state.config,
		commands.GCSBlobReader(state.cloud.StorageClient),
		state.uploads,
		state.intake)
	listener.SetCommand(trigger)
	listener.Listen(ctx)
	state.listeners = append(state.listeners, listener)
}
