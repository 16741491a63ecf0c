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

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// ClipCatalogService reads and prepares the BigQuery clip catalog.
type ClipCatalogService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	ClipTable      string
}

func (s *ClipCatalogService) table() *bigquery.Table {
	return s.BigqueryClient.Dataset(s.DatasetName).Table(s.ClipTable)
}

// GetFQN returns the table name in the project.dataset.table form used by
// standard SQL.
func (s *ClipCatalogService) GetFQN() string {
	return strings.Replace(s.table().FullyQualifiedName(), ":", ".", -1)
}

// Inserter is the streaming inserter for the clip table.
func (s *ClipCatalogService) Inserter() *bigquery.Inserter {
	return s.table().Inserter()
}

// EnsureTable creates the clip table from the ClipCatalogEntry schema when
// it does not exist yet.
func (s *ClipCatalogService) EnsureTable(ctx context.Context) error {
	_, err := s.table().Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("error reading clip table metadata: %w", err)
	}
	schema, err := bigquery.InferSchema(model.ClipCatalogEntry{})
	if err != nil {
		return err
	}
	if err := s.table().Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("error creating clip table: %w", err)
	}
	return nil
}

// ListByVideo returns the catalogued clips of videoID in clip order.
func (s *ClipCatalogService) ListByVideo(ctx context.Context, videoID uint) ([]*model.ClipCatalogEntry, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryClipsByVideo, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "video_id", Value: int64(videoID)}}
	return s.read(ctx, q)
}

// Recent returns the limit most recently catalogued clips.
func (s *ClipCatalogService) Recent(ctx context.Context, limit int) ([]*model.ClipCatalogEntry, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryRecentClips, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: int64(limit)}}
	return s.read(ctx, q)
}

func (s *ClipCatalogService) read(ctx context.Context, q *bigquery.Query) ([]*model.ClipCatalogEntry, error) {
	out := make([]*model.ClipCatalogEntry, 0)
	itr, err := q.Read(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read from BigQuery: %w", err)
	}
	for {
		row := &model.ClipCatalogEntry{}
		err := itr.Next(row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}
