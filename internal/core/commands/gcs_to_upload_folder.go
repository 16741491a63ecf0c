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

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
)

// BlobReaderFactory opens bucket/object for reading.
type BlobReaderFactory func(ctx goctx.Context, bucket string, object string) (io.ReadCloser, error)

// GCSBlobReader returns a BlobReaderFactory backed by client.
func GCSBlobReader(client *storage.Client) BlobReaderFactory {
	return func(ctx goctx.Context, bucket string, object string) (io.ReadCloser, error) {
		return client.Bucket(bucket).Object(object).NewReader(ctx)
	}
}

// UploadSaver stores an uploaded stream under a sanitized, unique name and
// returns the local path. services.UploadStore implements it.
type UploadSaver interface {
	Save(filename string, r io.Reader) (string, error)
}

// GCSToUploadFolder downloads the triggering object into the uploads folder.
// The local path is the command output. A missing object or one the upload
// store refuses fails with cloud.ErrUnprocessable.
type GCSToUploadFolder struct {
	cor.BaseCommand
	open  BlobReaderFactory
	store UploadSaver
}

func NewGCSToUploadFolder(name string, open BlobReaderFactory, store UploadSaver) *GCSToUploadFolder {
	return &GCSToUploadFolder{BaseCommand: *cor.NewBaseCommand(name), open: open, store: store}
}

func (c *GCSToUploadFolder) Execute(context cor.Context) {
	msg, ok := context.Get(c.GetInputParam()).(*cloud.GCSObject)
	if !ok {
		c.Fail(context, fmt.Errorf("expected GCS object, got %T", context.Get(c.GetInputParam())))
		return
	}

	reader, err := c.open(context.GetContext(), msg.Bucket, msg.Name)
	if err != nil {
		err = fmt.Errorf("failed to create GCS reader for %s: %w", msg.URI(), err)
		if errors.Is(err, storage.ErrObjectNotExist) {
			err = cloud.Unprocessable(err)
		}
		c.Fail(context, err)
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close GCS reader", "error", err)
		}
	}()

	path, err := c.store.Save(msg.BaseName(), reader)
	if err != nil {
		err = fmt.Errorf("failed to store %s: %w", msg.URI(), err)
		if rejectedUpload(err) {
			err = cloud.Unprocessable(err)
		}
		c.Fail(context, err)
		return
	}

	slog.InfoContext(context.GetContext(), "downloaded trigger object", "uri", msg.URI(), "path", path)
	c.Succeed(context, path)
}

func rejectedUpload(err error) bool {
	return errors.Is(err, services.ErrUploadTooLarge) ||
		errors.Is(err, services.ErrEmptyFilename) ||
		errors.Is(err, services.ErrDisallowedExtension)
}
