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

package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/workflow"
)

// UploadFormField is the multipart field carrying the video.
const UploadFormField = "video"

// formOverheadBytes is allowed on top of the file size for multipart framing.
const formOverheadBytes = 1 << 20

// sniffBytes is how much of a file filetype needs to recognise it.
const sniffBytes = 261

func (h *Handlers) UploadRouter(r gin.IRouter) {
	r.POST("/upload", h.upload)
}

func (h *Handlers) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Uploads.MaxBytes()+formOverheadBytes)

	header, err := c.FormFile(UploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": services.ErrUploadTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no video file provided"})
		return
	}
	if header.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no selected file"})
		return
	}
	if !h.Uploads.Allowed(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrDisallowedExtension.Error()})
		return
	}
	if header.Size > h.Uploads.MaxBytes() {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": services.ErrUploadTooLarge.Error()})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	if err := checkContent(file); err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	}

	path, err := h.Uploads.Save(header.Filename, file)
	switch {
	case errors.Is(err, services.ErrUploadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrEmptyFilename), errors.Is(err, services.ErrDisallowedExtension):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.ErrorContext(c, "failed to store upload", "filename", header.Filename, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	video, err := h.Intake.Enqueue(c.Request.Context(), path)
	if err != nil {
		if video != nil && (errors.Is(err, workflow.ErrQueueFull) || errors.Is(err, workflow.ErrRunnerStopped)) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "video_id": video.ID})
			return
		}
		slog.ErrorContext(c, "failed to register upload", "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/status/%d", video.ID))
}

// checkContent rejects files whose leading bytes identify a known type that
// is not a video. Unrecognised content is accepted and left to ffmpeg.
func checkContent(file multipart.File) error {
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown && !filetype.IsVideo(head) {
		return fmt.Errorf("content is %s, not a video", kind.MIME.Value)
	}
	return nil
}
