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
	goctx "context"
	"errors"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// ArchiveRecorder persists one archived clip.
// services.VideoService implements it.
type ArchiveRecorder interface {
	RecordArchive(ctx goctx.Context, archive *model.ClipArchive) error
}

// ClipArchiveRecord stores a ClipArchive row for every clip the archive
// upload copied. Clips whose upload failed get no row, so nothing signs a
// URL for an object that does not exist.
type ClipArchiveRecord struct {
	cor.BaseCommand
	recorder ArchiveRecorder
	now      func() time.Time
}

func NewClipArchiveRecord(name string, recorder ArchiveRecorder) *ClipArchiveRecord {
	out := &ClipArchiveRecord{BaseCommand: *cor.NewBaseCommand(name), recorder: recorder, now: time.Now}
	out.InputParamName = GetArchivedClipsParameterName()
	return out
}

func (c *ClipArchiveRecord) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.GetContext() != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(GetPersistedClipsParameterName()) != nil
}

func (c *ClipArchiveRecord) Execute(context cor.Context) {
	archived := context.Get(c.GetInputParam()).(map[string]string)
	clips := context.Get(GetPersistedClipsParameterName()).([]*model.Clip)

	now := c.now().UTC()
	recorded := 0
	var errs error
	for _, clip := range clips {
		uri, ok := archived[clip.ClipPath]
		if !ok {
			continue
		}
		archive := &model.ClipArchive{ClipID: clip.ID, VideoID: clip.VideoID, URI: uri, ArchivedAt: now}
		if err := c.recorder.RecordArchive(context.GetContext(), archive); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		recorded++
	}
	if errs != nil {
		c.Fail(context, fmt.Errorf("recorded %d of %d archived clips: %w", recorded, len(archived), errs))
		return
	}
	c.Succeed(context, archived)
}
