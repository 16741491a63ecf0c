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

package model

import "time"

// ClipCatalogEntry is a clip row mirrored to BigQuery after a run completes.
type ClipCatalogEntry struct {
	ClipID        int64     `json:"clip_id" bigquery:"clip_id"`
	VideoID       int64     `json:"video_id" bigquery:"video_id"`
	VideoFilename string    `json:"video_filename" bigquery:"video_filename"`
	ClipName      string    `json:"clip_name" bigquery:"clip_name"`
	ArchiveURI    string    `json:"archive_uri" bigquery:"archive_uri"`
	StartTime     float64   `json:"start_time" bigquery:"start_time"`
	EndTime       float64   `json:"end_time" bigquery:"end_time"`
	Description   string    `json:"description" bigquery:"description"`
	CreatedAt     time.Time `json:"created_at" bigquery:"created_at"`
}

// NewClipCatalogEntry builds the catalog row for clip. archiveURI is empty
// when the clip was not archived.
func NewClipCatalogEntry(video *Video, clip *Clip, clipName string, archiveURI string, now time.Time) *ClipCatalogEntry {
	return &ClipCatalogEntry{
		ClipID:        int64(clip.ID),
		VideoID:       int64(video.ID),
		VideoFilename: video.Filename,
		ClipName:      clipName,
		ArchiveURI:    archiveURI,
		StartTime:     clip.StartTime,
		EndTime:       clip.EndTime,
		Description:   clip.Description,
		CreatedAt:     now,
	}
}
