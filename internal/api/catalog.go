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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultCatalogLimit = 20
	maxCatalogLimit     = 200
)

// CatalogRouter serves clip catalog rows. Every route answers 404 when no
// catalog is configured.
func (h *Handlers) CatalogRouter(r *gin.RouterGroup) {
	catalog := r.Group("/catalog")
	{
		catalog.GET("", func(c *gin.Context) {
			if h.Catalog == nil {
				c.Status(http.StatusNotFound)
				return
			}
			limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultCatalogLimit)))
			if err != nil || limit < 1 {
				limit = defaultCatalogLimit
			}
			rows, err := h.Catalog.Recent(c.Request.Context(), min(limit, maxCatalogLimit))
			if err != nil {
				slog.ErrorContext(c, "catalog query failed", "error", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, rows)
		})

		catalog.GET("/:id", func(c *gin.Context) {
			if h.Catalog == nil {
				c.Status(http.StatusNotFound)
				return
			}
			id, ok := videoID(c)
			if !ok {
				return
			}
			rows, err := h.Catalog.ListByVideo(c.Request.Context(), id)
			if err != nil {
				slog.ErrorContext(c, "catalog query failed", "video_id", id, "error", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, rows)
		})
	}
}
