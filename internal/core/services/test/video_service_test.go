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

// Package services_test covers the sqlite repository, the upload store and
// the archive helpers.
package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	test "github.com/jaycherian/gcp-go-highlight-clipper/internal/testutil"
	"github.com/zeebo/assert"
)

func newVideoService(t *testing.T) *services.VideoService {
	t.Helper()
	config := test.GetTempConfig(t)
	return services.NewVideoService(test.NewTestDB(t, config))
}

func TestVideoLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	video, err := svc.CreateVideo(ctx, "launch.mp4")
	assert.NoError(t, err)
	assert.That(t, video.ID > 0)
	assert.Equal(t, video.Status, model.StatusUploaded)

	assert.NoError(t, svc.UpdateStatus(ctx, video.ID, model.StatusTranscribing))
	loaded, err := svc.GetVideo(ctx, video.ID)
	assert.NoError(t, err)
	assert.Equal(t, loaded.Filename, "launch.mp4")
	assert.Equal(t, loaded.Status, model.StatusTranscribing)
	assert.That(t, !loaded.IsTerminal())
	assert.That(t, time.Since(loaded.UploadDate) < time.Minute)
}

func TestVideoNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	_, err := svc.GetVideo(ctx, 99)
	assert.That(t, errors.Is(err, services.ErrVideoNotFound))

	err = svc.UpdateStatus(ctx, 99, model.StatusProcessed)
	assert.That(t, errors.Is(err, services.ErrVideoNotFound))
}

func TestClipsBelongToVideo(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	video, err := svc.CreateVideo(ctx, "launch.mp4")
	assert.NoError(t, err)
	other, err := svc.CreateVideo(ctx, "other.mp4")
	assert.NoError(t, err)

	for i, start := range []float64{5, 60, 130} {
		clip := &model.Clip{VideoID: video.ID, ClipPath: "static/clips/clip.mp4", StartTime: start, EndTime: start + 35, Description: strings.Repeat("x", i+1)}
		assert.NoError(t, svc.SaveClip(ctx, clip))
		assert.That(t, clip.ID > 0)
	}
	assert.NoError(t, svc.SaveClip(ctx, &model.Clip{VideoID: other.ID, ClipPath: "o.mp4", StartTime: 0, EndTime: 30}))

	clips, err := svc.ListClips(ctx, video.ID)
	assert.NoError(t, err)
	assert.Equal(t, len(clips), 3)
	assert.Equal(t, clips[0].StartTime, 5.0)
	assert.Equal(t, clips[2].Description, "xxx")

	count, err := svc.CountClips(ctx, video.ID)
	assert.NoError(t, err)
	assert.Equal(t, count, int64(3))
}

func TestClipRequiresExistingVideo(t *testing.T) {
	svc := newVideoService(t)
	err := svc.SaveClip(context.Background(), &model.Clip{VideoID: 12345, ClipPath: "orphan.mp4", StartTime: 0, EndTime: 30})
	assert.Error(t, err)
}

func TestListUnfinished(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	statuses := []string{
		model.StatusUploaded,
		model.StatusTranscribing,
		model.StatusProcessed,
		"error: Failed to process video: boom",
	}
	ids := make([]uint, 0, len(statuses))
	for _, status := range statuses {
		v, err := svc.CreateVideo(ctx, status+".mp4")
		assert.NoError(t, err)
		assert.NoError(t, svc.UpdateStatus(ctx, v.ID, status))
		ids = append(ids, v.ID)
	}

	unfinished, err := svc.ListUnfinished(ctx, time.Now().Add(time.Second))
	assert.NoError(t, err)
	assert.Equal(t, len(unfinished), 2)
	assert.Equal(t, unfinished[0].ID, ids[0])
	assert.Equal(t, unfinished[1].ID, ids[1])

	none, err := svc.ListUnfinished(ctx, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, len(none), 0)
}

func TestWithConnectionUsesOneConnection(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	var created *model.Video
	err := svc.WithConnection(ctx, func(repo services.VideoRepository) error {
		var err error
		created, err = repo.CreateVideo(ctx, "pinned.mp4")
		if err != nil {
			return err
		}
		return repo.UpdateStatus(ctx, created.ID, model.StatusInitializing)
	})
	assert.NoError(t, err)

	loaded, err := svc.GetVideo(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, loaded.Status, model.StatusInitializing)
}

func TestDSN(t *testing.T) {
	dsn := services.DSN(cloud.Database{Path: "data/videos.db", BusyTimeoutMsec: 5000})
	assert.That(t, strings.HasPrefix(dsn, "data/videos.db?"))
	assert.That(t, strings.Contains(dsn, "_pragma=foreign_keys(1)"))
	assert.That(t, strings.Contains(dsn, "_pragma=busy_timeout(5000)"))
}

func TestClipArchiveRecords(t *testing.T) {
	ctx := context.Background()
	svc := newVideoService(t)

	video, err := svc.CreateVideo(ctx, "launch.mp4")
	assert.NoError(t, err)
	first := &model.Clip{VideoID: video.ID, ClipPath: "clips/clip_1.mp4"}
	second := &model.Clip{VideoID: video.ID, ClipPath: "clips/clip_2.mp4"}
	assert.NoError(t, svc.SaveClip(ctx, first))
	assert.NoError(t, svc.SaveClip(ctx, second))

	archives, err := svc.ListArchives(ctx, video.ID)
	assert.NoError(t, err)
	assert.Equal(t, len(archives), 0)

	now := time.Now().UTC()
	assert.NoError(t, svc.RecordArchive(ctx, &model.ClipArchive{ClipID: first.ID, VideoID: video.ID, URI: "gs://a/old.mp4", ArchivedAt: now}))
	assert.NoError(t, svc.RecordArchive(ctx, &model.ClipArchive{ClipID: first.ID, VideoID: video.ID, URI: "gs://a/clip_1.mp4", ArchivedAt: now}))

	archives, err = svc.ListArchives(ctx, video.ID)
	assert.NoError(t, err)
	assert.DeepEqual(t, archives, map[uint]string{first.ID: "gs://a/clip_1.mp4"})

	err = svc.RecordArchive(ctx, &model.ClipArchive{ClipID: 999, VideoID: video.ID, URI: "gs://a/none.mp4", ArchivedAt: now})
	assert.Error(t, err)
}
