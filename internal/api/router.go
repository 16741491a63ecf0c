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

// Package api contains the HTTP surface of the highlight clipper: upload
// intake, status polling, clip downloads, the per-video dashboard and the
// optional clip catalog.
//
// Routes:
//   - POST /upload: stores a video and queues its run, then redirects to
//     /status/<id>.
//   - GET /status/:id: the current status of a video.
//   - GET /clips/*filepath: rendered clip files.
//   - GET /dashboard/:id: a video and its clips.
//   - GET /api/v1/catalog and /api/v1/catalog/:id: clip catalog rows, only
//     when the catalog is configured.
package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// VideoEnqueuer registers a stored upload and queues its run.
// workflow.VideoIntake implements it.
type VideoEnqueuer interface {
	Enqueue(ctx context.Context, path string) (*model.Video, error)
}

// URLSigner issues a browser usable URL for a gs:// URI.
// services.ArchiveService implements it.
type URLSigner interface {
	GenerateSignedURL(ctx context.Context, gsURI string) (string, error)
}

// ArchiveLister maps the clips of a video to their archived gs:// URIs.
// services.VideoService implements it.
type ArchiveLister interface {
	ListArchives(ctx context.Context, videoID uint) (map[uint]string, error)
}

// ClipCatalog reads clip rows from the catalog.
// services.ClipCatalogService implements it.
type ClipCatalog interface {
	ListByVideo(ctx context.Context, videoID uint) ([]*model.ClipCatalogEntry, error)
	Recent(ctx context.Context, limit int) ([]*model.ClipCatalogEntry, error)
}

// Handlers holds the dependencies of every route. Archives, Signer and
// Catalog are optional.
type Handlers struct {
	Videos      services.VideoRepository
	Intake      VideoEnqueuer
	Uploads     *services.UploadStore
	ClipsFolder string
	Archives    ArchiveLister
	Signer      URLSigner
	Catalog     ClipCatalog
}

// NewRouter builds the gin engine with tracing and CORS middleware and all
// routes registered.
func NewRouter(serviceName string, h *Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	h.UploadRouter(r)
	h.StatusRouter(r)
	h.DashboardRouter(r)
	r.Static("/clips", h.ClipsFolder)

	apiV1 := r.Group("/api/v1")
	{
		h.CatalogRouter(apiV1)
	}
	return r
}
