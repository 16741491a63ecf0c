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
	"fmt"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// ClipExportWorkflow copies the clips of a processed video to the archive
// bucket, remembers which copies succeeded and records the clips in the
// BigQuery catalog. Archive and catalog are optional and independent: a
// failed upload still lets the catalog rows be written, without archive URIs.
type ClipExportWorkflow struct {
	cor.BaseCommand
	writer   commands.BlobWriterFactory
	recorder commands.ArchiveRecorder
	inserter commands.RowInserter
	bucket   string
	prefix   string
	chain    cor.Chain
	steps    int
}

func (w *ClipExportWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Enabled reports whether the workflow has anything to do.
func (w *ClipExportWorkflow) Enabled() bool {
	return w.steps > 0
}

func (w *ClipExportWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.ContinueOnFailure(true)

	if w.writer != nil && w.bucket != "" {
		out.AddCommand(commands.NewClipArchiveUpload("archive-clips", w.writer, w.bucket, w.prefix))
		w.steps++
		if w.recorder != nil {
			out.AddCommand(commands.NewClipArchiveRecord("record-archived-clips", w.recorder))
		}
	}
	if w.inserter != nil {
		out.AddCommand(commands.NewClipCatalogPersist("catalog-clips", w.inserter))
		w.steps++
	}
	w.chain = out
}

// Export runs the configured steps for the clips of video.
func (w *ClipExportWorkflow) Export(ctx goctx.Context, video *model.Video, clips []*model.Clip) error {
	if !w.Enabled() {
		return nil
	}
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	chainCtx.Add(commands.GetVideoParameterName(), video)
	chainCtx.Add(commands.GetPersistedClipsParameterName(), clips)

	w.Execute(chainCtx)

	if !chainCtx.HasErrors() {
		return nil
	}
	var errs error
	for name, err := range chainCtx.GetErrors() {
		errs = errors.Join(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errs
}

// NewClipExportWorkflow builds the export for config. writer and inserter may
// be nil, which disables the matching step. recorder may be nil when nothing
// reads archive records.
func NewClipExportWorkflow(config *cloud.Config, writer commands.BlobWriterFactory, recorder commands.ArchiveRecorder, inserter commands.RowInserter) *ClipExportWorkflow {
	out := &ClipExportWorkflow{
		BaseCommand: *cor.NewBaseCommand("clip-export"),
		writer:      writer,
		recorder:    recorder,
		inserter:    inserter,
		bucket:      config.Storage.ClipBucket,
		prefix:      config.Storage.ClipArchivePrefix,
	}
	out.initializeChain()
	return out
}
