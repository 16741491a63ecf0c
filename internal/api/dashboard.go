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
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
)

// StatusResponse is the body of GET /status/:id. Clips and Redirect are set
// once the video is processed.
type StatusResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Clips    *int64 `json:"clips,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// DashboardClip is a clip as shown on the dashboard.
type DashboardClip struct {
	ID          uint    `json:"id"`
	VideoID     uint    `json:"video_id"`
	URL         string  `json:"url"`
	ArchiveURL  string  `json:"archive_url,omitempty"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	Description string  `json:"description"`
}

// DashboardResponse is the body of GET /dashboard/:id.
type DashboardResponse struct {
	Video *model.Video     `json:"video"`
	Clips []*DashboardClip `json:"clips"`
}

// videoID parses the :id parameter. Ids that are not positive integers do
// not match the route.
func videoID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.Status(http.StatusNotFound)
		return 0, false
	}
	return uint(id), true
}

func (h *Handlers) StatusRouter(r gin.IRouter) {
	r.GET("/status/:id", func(c *gin.Context) {
		id, ok := videoID(c)
		if !ok {
			return
		}
		video, err := h.Videos.GetVideo(c.Request.Context(), id)
		if errors.Is(err, services.ErrVideoNotFound) {
			c.JSON(http.StatusOK, StatusResponse{Status: model.StatusUnknown})
			return
		}
		if err != nil {
			slog.ErrorContext(c, "status lookup failed", "video_id", id, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		out := StatusResponse{Status: video.Status, Filename: video.Filename}
		if video.Status == model.StatusProcessed {
			count, err := h.Videos.CountClips(c.Request.Context(), id)
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			out.Clips = &count
			out.Redirect = fmt.Sprintf("/dashboard/%d", id)
		}
		c.JSON(http.StatusOK, out)
	})
}

func (h *Handlers) DashboardRouter(r gin.IRouter) {
	r.GET("/dashboard/:id", func(c *gin.Context) {
		id, ok := videoID(c)
		if !ok {
			return
		}
		video, err := h.Videos.GetVideo(c.Request.Context(), id)
		if errors.Is(err, services.ErrVideoNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		clips, err := h.Videos.ListClips(c.Request.Context(), id)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		archives := h.archives(c, id)

		out := DashboardResponse{Video: video, Clips: make([]*DashboardClip, 0, len(clips))}
		for _, clip := range clips {
			out.Clips = append(out.Clips, &DashboardClip{
				ID:          clip.ID,
				VideoID:     clip.VideoID,
				URL:         "/clips/" + filepath.Base(clip.ClipPath),
				ArchiveURL:  h.archiveURL(c, archives[clip.ID]),
				StartTime:   clip.StartTime,
				EndTime:     clip.EndTime,
				Description: clip.Description,
			})
		}
		c.JSON(http.StatusOK, out)
	})
}

// archives returns the recorded archive URIs of the clips of videoID. It is
// empty when archiving is off or the lookup fails.
func (h *Handlers) archives(c *gin.Context, videoID uint) map[uint]string {
	if h.Signer == nil || h.Archives == nil {
		return nil
	}
	out, err := h.Archives.ListArchives(c.Request.Context(), videoID)
	if err != nil {
		slog.WarnContext(c, "could not list archived clips", "video_id", videoID, "error", err)
		return nil
	}
	return out
}

// archiveURL signs gsURI, or returns "" for a clip that was never archived
// or when signing fails.
func (h *Handlers) archiveURL(c *gin.Context, gsURI string) string {
	if gsURI == "" {
		return ""
	}
	url, err := h.Signer.GenerateSignedURL(c.Request.Context(), gsURI)
	if err != nil {
		slog.WarnContext(c, "could not sign archived clip", "uri", gsURI, "error", err)
		return ""
	}
	return url
}
