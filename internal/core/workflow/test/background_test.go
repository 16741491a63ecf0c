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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-highlight-clipper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type activeSet map[uint]bool

func (a activeSet) Active(id uint) bool { return a[id] }

func TestStaleRunReaperMarksAbandonedRuns(t *testing.T) {
	h := newHarness(t)
	h.config.Application.StaleRunGraceSeconds = 0

	abandoned, err := h.videos.CreateVideo(ctx, "abandoned.mp4")
	require.NoError(t, err)
	require.NoError(t, h.videos.UpdateStatus(ctx, abandoned.ID, model.StatusTranscribing))

	running, err := h.videos.CreateVideo(ctx, "running.mp4")
	require.NoError(t, err)
	require.NoError(t, h.videos.UpdateStatus(ctx, running.ID, model.StatusSavingClips))

	done, err := h.videos.CreateVideo(ctx, "done.mp4")
	require.NoError(t, err)
	require.NoError(t, h.videos.UpdateStatus(ctx, done.ID, model.StatusProcessed))

	reaper := workflow.NewStaleRunReaper(h.config, h.videos, activeSet{running.ID: true})
	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	statuses := map[uint]string{}
	for _, id := range []uint{abandoned.ID, running.ID, done.ID} {
		v, err := h.videos.GetVideo(ctx, id)
		require.NoError(t, err)
		statuses[id] = v.Status
	}
	assert.Equal(t, "error: Unexpected error: processing interrupted", statuses[abandoned.ID])
	assert.Equal(t, model.StatusSavingClips, statuses[running.ID])
	assert.Equal(t, model.StatusProcessed, statuses[done.ID])

	reaped, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)
}

func TestStaleRunReaperRespectsGracePeriod(t *testing.T) {
	h := newHarness(t)
	h.config.Application.StaleRunGraceSeconds = 3600

	fresh, err := h.videos.CreateVideo(ctx, "fresh.mp4")
	require.NoError(t, err)

	reaper := workflow.NewStaleRunReaper(h.config, h.videos, nil)
	reaper.StartTimer(ctx)

	v, err := h.videos.GetVideo(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, v.Status)
}

// memoryBucket collects objects written through its BlobWriterFactory.
type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

type memoryObject struct {
	bytes.Buffer
	name   string
	bucket *memoryBucket
}

func (o *memoryObject) Close() error {
	o.bucket.mu.Lock()
	defer o.bucket.mu.Unlock()
	if o.bucket.failOn != "" && filepath.Base(o.name) == o.bucket.failOn {
		return errors.New("googleapi: Error 403: permission denied")
	}
	o.bucket.objects[o.name] = o.Bytes()
	return nil
}

func (b *memoryBucket) Writer() commands.BlobWriterFactory {
	return func(_ context.Context, bucket string, object string) io.WriteCloser {
		return &memoryObject{name: bucket + "/" + object, bucket: b}
	}
}

type recordingInserter struct {
	rows []*model.ClipCatalogEntry
	err  error
}

func (r *recordingInserter) Put(_ context.Context, src interface{}) error {
	r.rows = append(r.rows, src.([]*model.ClipCatalogEntry)...)
	return r.err
}

func exportFixture(t *testing.T, h *harness) (*model.Video, []*model.Clip) {
	t.Helper()
	video, err := h.videos.CreateVideo(ctx, "keynote.mp4")
	require.NoError(t, err)
	clips := make([]*model.Clip, 0, 2)
	for i := 1; i <= 2; i++ {
		path := test.WriteFile(t, h.config.Storage.ClipsFolder, fmt.Sprintf("clip_%d_fake.mp4", i), "clip")
		clip := &model.Clip{VideoID: video.ID, ClipPath: path, StartTime: float64(i * 10), EndTime: float64(i*10 + 35), Description: fmt.Sprintf("moment %d", i)}
		require.NoError(t, h.videos.SaveClip(ctx, clip))
		clips = append(clips, clip)
	}
	return video, clips
}

func TestClipExportArchivesAndCatalogs(t *testing.T) {
	h := newHarness(t)
	h.config.Storage.ClipBucket = "clipper-archive"
	h.config.Storage.ClipArchivePrefix = "highlights"
	video, clips := exportFixture(t, h)

	bucket := &memoryBucket{objects: map[string][]byte{}}
	inserter := &recordingInserter{}
	export := workflow.NewClipExportWorkflow(h.config, bucket.Writer(), h.videos, inserter)
	require.True(t, export.Enabled())

	require.NoError(t, export.Export(ctx, video, clips))

	object := fmt.Sprintf("clipper-archive/highlights/videos/%d/clip_1_fake.mp4", video.ID)
	assert.Equal(t, []byte("clip"), bucket.objects[object])
	assert.Len(t, bucket.objects, 2)

	require.Len(t, inserter.rows, 2)
	assert.Equal(t, "gs://"+object, inserter.rows[0].ArchiveURI)
	assert.Equal(t, "keynote.mp4", inserter.rows[0].VideoFilename)
	assert.Equal(t, "clip_1_fake.mp4", inserter.rows[0].ClipName)
	assert.Equal(t, "moment 2", inserter.rows[1].Description)

	archives, err := h.videos.ListArchives(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{
		clips[0].ID: "gs://" + object,
		clips[1].ID: fmt.Sprintf("gs://clipper-archive/highlights/videos/%d/clip_2_fake.mp4", video.ID),
	}, archives)
}

func TestClipExportCatalogsEvenWhenArchiveFails(t *testing.T) {
	h := newHarness(t)
	h.config.Storage.ClipBucket = "clipper-archive"
	video, clips := exportFixture(t, h)

	bucket := &memoryBucket{objects: map[string][]byte{}, failOn: "clip_2_fake.mp4"}
	inserter := &recordingInserter{}
	export := workflow.NewClipExportWorkflow(h.config, bucket.Writer(), h.videos, inserter)

	err := export.Export(ctx, video, clips)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive-clips")

	require.Len(t, inserter.rows, 2)
	assert.NotEmpty(t, inserter.rows[0].ArchiveURI)
	assert.Empty(t, inserter.rows[1].ArchiveURI)

	archives, err := h.videos.ListArchives(ctx, video.ID)
	require.NoError(t, err)
	assert.Len(t, archives, 1)
	assert.Contains(t, archives, clips[0].ID)
	assert.NotContains(t, archives, clips[1].ID)
}

func TestClipExportDisabledWithoutTargets(t *testing.T) {
	h := newHarness(t)
	h.config.Storage.ClipBucket = ""
	video, clips := exportFixture(t, h)

	export := workflow.NewClipExportWorkflow(h.config, nil, h.videos, nil)
	assert.False(t, export.Enabled())
	assert.NoError(t, export.Export(ctx, video, clips))
}
