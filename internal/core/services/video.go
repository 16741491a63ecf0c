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

// Package services contains the data access layer of the clipper: the sqlite
// backed video and clip repository, the upload store, the BigQuery clip
// catalog and signed URLs for archived clips.
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrVideoNotFound is returned when no Video has the requested id.
var ErrVideoNotFound = errors.New("video not found")

// VideoRepository is the persistence contract of the pipeline and the HTTP
// handlers.
type VideoRepository interface {
	CreateVideo(ctx context.Context, filename string) (*model.Video, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	GetVideo(ctx context.Context, id uint) (*model.Video, error)
	SaveClip(ctx context.Context, clip *model.Clip) error
	ListClips(ctx context.Context, videoID uint) ([]*model.Clip, error)
	CountClips(ctx context.Context, videoID uint) (int64, error)
	ListUnfinished(ctx context.Context, uploadedBefore time.Time) ([]*model.Video, error)

	// WithConnection runs fn on a repository pinned to one dedicated
	// connection that is released when fn returns, on every path.
	WithConnection(ctx context.Context, fn func(repo VideoRepository) error) error
}

// VideoService is the gorm implementation of VideoRepository.
type VideoService struct {
	db *gorm.DB
}

func NewVideoService(db *gorm.DB) *VideoService {
	return &VideoService{db: db}
}

// DSN builds the sqlite connection string with foreign keys enforced.
func DSN(config cloud.Database) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		config.Path, config.BusyTimeoutMsec)
}

// OpenDatabase opens the sqlite database, creating its directory, and
// migrates the videos, clips and clip_archives tables.
func OpenDatabase(config cloud.Database) (*gorm.DB, error) {
	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(DSN(config)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database %s: %w", config.Path, err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if err := db.AutoMigrate(&model.Video{}, &model.Clip{}, &model.ClipArchive{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

// CloseDatabase closes the pool behind db.
func CloseDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *VideoService) CreateVideo(ctx context.Context, filename string) (*model.Video, error) {
	video := &model.Video{
		Filename:   filename,
		UploadDate: time.Now().UTC(),
		Status:     model.StatusUploaded,
	}
	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		return nil, fmt.Errorf("error creating video: %w", err)
	}
	return video, nil
}

func (s *VideoService) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := s.db.WithContext(ctx).Model(&model.Video{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("error updating status of video %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrVideoNotFound, id)
	}
	return nil
}

func (s *VideoService) GetVideo(ctx context.Context, id uint) (*model.Video, error) {
	var video model.Video
	err := s.db.WithContext(ctx).First(&video, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrVideoNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// SaveClip inserts clip and fills in its id.
func (s *VideoService) SaveClip(ctx context.Context, clip *model.Clip) error {
	if err := s.db.WithContext(ctx).Create(clip).Error; err != nil {
		return fmt.Errorf("error saving clip for video %d: %w", clip.VideoID, err)
	}
	return nil
}

func (s *VideoService) ListClips(ctx context.Context, videoID uint) ([]*model.Clip, error) {
	clips := make([]*model.Clip, 0)
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).Order("id").Find(&clips).Error
	return clips, err
}

func (s *VideoService) CountClips(ctx context.Context, videoID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Clip{}).Where("video_id = ?", videoID).Count(&count).Error
	return count, err
}

// ListUnfinished returns videos uploaded before uploadedBefore whose status
// is neither processed nor an error.
func (s *VideoService) ListUnfinished(ctx context.Context, uploadedBefore time.Time) ([]*model.Video, error) {
	videos := make([]*model.Video, 0)
	err := s.db.WithContext(ctx).
		Where("status <> ? AND status NOT LIKE ? AND upload_date < ?",
			model.StatusProcessed, model.StatusErrorPrefix+"%", uploadedBefore.UTC()).
		Order("id").
		Find(&videos).Error
	return videos, err
}

// RecordArchive stores archive, replacing an earlier record for the same clip.
func (s *VideoService) RecordArchive(ctx context.Context, archive *model.ClipArchive) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(archive).Error; err != nil {
		return fmt.Errorf("error recording archive of clip %d: %w", archive.ClipID, err)
	}
	return nil
}

// ListArchives maps clip id to the gs:// URI of its archived copy for the
// clips of videoID.
func (s *VideoService) ListArchives(ctx context.Context, videoID uint) (map[uint]string, error) {
	rows := make([]*model.ClipArchive, 0)
	if err := s.db.WithContext(ctx).Where("video_id = ?", videoID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(rows))
	for _, row := range rows {
		out[row.ClipID] = row.URI
	}
	return out, nil
}

func (s *VideoService) WithConnection(ctx context.Context, fn func(repo VideoRepository) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&VideoService{db: conn})
	})
}
