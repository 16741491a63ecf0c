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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// RowInserter streams rows into a table. *bigquery.Inserter satisfies it.
type RowInserter interface {
	Put(ctx goctx.Context, src interface{}) error
}

// ClipCatalogPersist inserts one ClipCatalogEntry per persisted clip into the
// BigQuery clip catalog. Archive URIs are taken from the clip archive output
// when it ran.
type ClipCatalogPersist struct {
	cor.BaseCommand
	inserter RowInserter
	now      func() time.Time
}

func NewClipCatalogPersist(name string, inserter RowInserter) *ClipCatalogPersist {
	out := &ClipCatalogPersist{BaseCommand: *cor.NewBaseCommand(name), inserter: inserter, now: time.Now}
	out.InputParamName = GetPersistedClipsParameterName()
	return out
}

func (s *ClipCatalogPersist) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.GetContext() != nil &&
		context.Get(s.GetInputParam()) != nil &&
		context.Get(GetVideoParameterName()) != nil
}

// Entries builds the catalog rows for clips.
func (s *ClipCatalogPersist) Entries(video *model.Video, clips []*model.Clip, archived map[string]string) []*model.ClipCatalogEntry {
	now := s.now().UTC()
	rows := make([]*model.ClipCatalogEntry, 0, len(clips))
	for _, clip := range clips {
		rows = append(rows, model.NewClipCatalogEntry(video, clip, filepath.Base(clip.ClipPath), archived[clip.ClipPath], now))
	}
	return rows
}

func (s *ClipCatalogPersist) Execute(context cor.Context) {
	video := context.Get(GetVideoParameterName()).(*model.Video)
	clips := context.Get(s.GetInputParam()).([]*model.Clip)
	archived, _ := context.Get(GetArchivedClipsParameterName()).(map[string]string)

	if len(clips) == 0 {
		s.Succeed(context, clips)
		return
	}

	rows := s.Entries(video, clips, archived)
	if err := s.inserter.Put(context.GetContext(), rows); err != nil {
		s.Fail(context, fmt.Errorf("bigquery insert failed for video %d: %w", video.ID, err))
		return
	}
	slog.InfoContext(context.GetContext(), "clips catalogued", "video_id", video.ID, "rows", len(rows))
	s.Succeed(context, clips)
}
