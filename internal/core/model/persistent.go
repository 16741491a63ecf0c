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

// Package model holds the persisted rows (Video, Clip), the transient
// pipeline records (Highlight, RenderedClip, ProcessingJob) and the typed
// run result used by the processing state machine.
package model

import (
	"strings"
	"time"
)

// Video status labels. Error states are free text built by RunResult.Status
// and always start with StatusErrorPrefix.
const (
	StatusUploaded     = "uploaded"
	StatusInitializing = "initializing"
	StatusTranscribing = "transcribing"
	StatusSavingClips  = "saving_clips"
	StatusProcessed    = "processed"
	StatusUnknown      = "unknown"

	StatusErrorPrefix = "error: "
)

// Video is one uploaded source file.
type Video struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename   string    `gorm:"type:text" json:"filename"`
	UploadDate time.Time `gorm:"column:upload_date" json:"upload_date"`
	Status     string    `gorm:"type:text;index" json:"status"`
	Clips      []Clip    `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Video) TableName() string {
	return "videos"
}

// IsTerminal reports whether the video has finished processing, successfully
// or not.
func (v *Video) IsTerminal() bool {
	return v.Status == StatusProcessed || strings.HasPrefix(v.Status, StatusErrorPrefix)
}

// Clip is one rendered highlight. Rows are written once and never updated.
type Clip struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id" bigquery:"id"`
	VideoID     uint    `gorm:"not null;index" json:"video_id" bigquery:"video_id"`
	ClipPath    string  `gorm:"type:text" json:"clip_path" bigquery:"clip_path"`
	StartTime   float64 `json:"start_time" bigquery:"start_time"`
	EndTime     float64 `json:"end_time" bigquery:"end_time"`
	Description string  `gorm:"type:text" json:"description" bigquery:"description"`
}

func (Clip) TableName() string {
	return "clips"
}

// ClipArchive records that the clip ClipID was copied to URI. A clip
// without a row was never archived.
type ClipArchive struct {
	ClipID     uint      `gorm:"primaryKey;autoIncrement:false" json:"clip_id"`
	VideoID    uint      `gorm:"not null;index" json:"video_id"`
	URI        string    `gorm:"type:text;not null" json:"uri"`
	ArchivedAt time.Time `json:"archived_at"`
	Clip       Clip      `gorm:"foreignKey:ClipID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ClipArchive) TableName() string {
	return "clip_archives"
}
