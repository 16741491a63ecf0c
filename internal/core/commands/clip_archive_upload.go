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
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

// BlobWriterFactory opens a writer for bucket/object. Closing the writer
// commits the object.
type BlobWriterFactory func(ctx goctx.Context, bucket string, object string) io.WriteCloser

// GCSBlobWriter returns a BlobWriterFactory backed by client.
func GCSBlobWriter(client *storage.Client) BlobWriterFactory {
	return func(ctx goctx.Context, bucket string, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "video/mp4"
		return w
	}
}

// ClipArchiveUpload copies every persisted clip of a video to
// gs://<bucket>/<prefix>/videos/<id>/<clip file>. Local files are kept because
// the dashboard serves them. The output is a map of clip path to gs:// URI
// for the clips that were archived.
type ClipArchiveUpload struct {
	cor.BaseCommand
	open   BlobWriterFactory
	bucket string
	prefix string
}

func NewClipArchiveUpload(name string, open BlobWriterFactory, bucket string, prefix string) *ClipArchiveUpload {
	out := &ClipArchiveUpload{BaseCommand: *cor.NewBaseCommand(name), open: open, bucket: bucket, prefix: prefix}
	out.InputParamName = GetPersistedClipsParameterName()
	out.OutputParamName = GetArchivedClipsParameterName()
	return out
}

func (c *ClipArchiveUpload) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.GetContext() != nil &&
		context.Get(c.GetInputParam()) != nil &&
		context.Get(GetVideoParameterName()) != nil
}

// ObjectName is the archive object for clipPath of videoID.
func (c *ClipArchiveUpload) ObjectName(videoID uint, clipPath string) string {
	return cloud.ClipArchiveObject(c.prefix, videoID, clipPath)
}

func (c *ClipArchiveUpload) Execute(context cor.Context) {
	video := context.Get(GetVideoParameterName()).(*model.Video)
	clips := context.Get(c.GetInputParam()).([]*model.Clip)

	archived := make(map[string]string, len(clips))
	var errs error
	for _, clip := range clips {
		object := c.ObjectName(video.ID, clip.ClipPath)
		if err := c.upload(context.GetContext(), clip.ClipPath, object); err != nil {
			errs = errors.Join(errs, fmt.Errorf("archive of %s failed: %w", clip.ClipPath, err))
			continue
		}
		uri := (&cloud.GCSObject{Bucket: c.bucket, Name: object}).URI()
		archived[clip.ClipPath] = uri
		slog.InfoContext(context.GetContext(), "clip archived", "video_id", video.ID, "uri", uri)
	}

	// partial archives still feed the catalog
	context.Add(c.GetOutputParam(), archived)
	if errs != nil {
		c.Fail(context, errs)
		return
	}
	c.Succeed(context, archived)
}

func (c *ClipArchiveUpload) upload(ctx goctx.Context, path string, object string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	writer := c.open(ctx, c.bucket, object)
	if written, err := io.Copy(writer, src); err != nil {
		_ = writer.Close()
		return fmt.Errorf("partial write of %d bytes: %w", written, err)
	}
	return writer.Close()
}
