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

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
)

// MediaTriggerToGCSObject decodes a Cloud Storage notification into a
// *cloud.GCSObject. Objects whose extension is not allowed produce no output,
// which ends the chain without an error so the message is acked. Malformed
// notifications fail with cloud.ErrUnprocessable.
type MediaTriggerToGCSObject struct {
	cor.BaseCommand
	allowed map[string]bool
}

func NewMediaTriggerToGCSObject(name string, allowedExtensions []string) *MediaTriggerToGCSObject {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &MediaTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name), allowed: allowed}
}

func (c *MediaTriggerToGCSObject) Execute(context cor.Context) {
	in, ok := context.Get(c.GetInputParam()).(string)
	if !ok {
		c.Fail(context, cloud.Unprocessable(fmt.Errorf("expected notification text, got %T", context.Get(c.GetInputParam()))))
		return
	}

	var notification cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &notification); err != nil {
		c.Fail(context, cloud.Unprocessable(fmt.Errorf("failed to unmarshal GCS notification: %w", err)))
		return
	}
	if notification.Bucket == "" || notification.Name == "" {
		c.Fail(context, cloud.Unprocessable(errors.New("notification is missing bucket or object name")))
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(notification.Name), "."))
	if !c.allowed[ext] {
		slog.InfoContext(context.GetContext(), "ignoring object with disallowed extension", "bucket", notification.Bucket, "name", notification.Name)
		c.GetSuccessCounter().Add(context.GetContext(), 1)
		return
	}

	msg := &cloud.GCSObject{Bucket: notification.Bucket, Name: notification.Name, MIMEType: notification.ContentType}
	context.Add(cloud.GetGCSObjectName(), msg)
	c.Succeed(context, msg)
}
