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

// Package test provides the shared setup of the test suites: the test
// configuration, throwaway databases and folders, and fakes for the external
// tools of the pipeline.
package test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/services"
	"gorm.io/gorm"
)

type StateManager struct {
	mu     sync.Mutex
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails t when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ConfigDir is the absolute path of the repository's configs directory, so
// tests find it from any package directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once and returns a copy, so tests
// can change folders without affecting each other.
func GetConfig() *cloud.Config {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	}
	c := *state.config
	c.Storage.AllowedExtensions = append([]string(nil), state.config.Storage.AllowedExtensions...)
	return &c
}

// GetTempConfig returns the test configuration with every folder and the
// database moved under t.TempDir().
func GetTempConfig(t *testing.T) *cloud.Config {
	t.Helper()
	config := GetConfig()
	root := t.TempDir()
	config.Storage.UploadFolder = filepath.Join(root, "uploads")
	config.Storage.ClipsFolder = filepath.Join(root, "clips")
	config.Storage.TranscriptsFolder = filepath.Join(root, "transcripts")
	config.Database.Path = filepath.Join(root, "db", "clipper.db")
	config.Transcription.ModelDir = filepath.Join(root, "models")
	for _, dir := range []string{config.Storage.UploadFolder, config.Storage.ClipsFolder, config.Storage.TranscriptsFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	return config
}

// NewTestDB opens a migrated sqlite database in t's temp folder and closes
// it when the test ends.
func NewTestDB(t *testing.T, config *cloud.Config) *gorm.DB {
	t.Helper()
	db, err := services.OpenDatabase(config.Database)
	HandleErr(err, t)
	t.Cleanup(func() { _ = services.CloseDatabase(db) })
	return db
}

// WriteFile creates a file with content under dir and returns its path.
func WriteFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	HandleErr(os.WriteFile(path, []byte(content), 0o644), t)
	return path
}

// GetTestUploadMessageText is a Cloud Storage OBJECT_FINALIZE notification
// for bucket/name.
func GetTestUploadMessageText(bucket string, name string) string {
	return fmt.Sprintf(`{
  "kind": "storage#object",
  "id": "%[1]s/%[2]s/1728615848664286",
  "name": "%[2]s",
  "bucket": "%[1]s",
  "contentType": "video/mp4",
  "timeCreated": "2024-10-11T03:04:08.672Z",
  "size": "259348037",
  "md5Hash": "67c1rAU+1RYZzK5zp8iBkA==",
  "metadata": { "touch": "18" }
}`, bucket, name)
}

// GetTestHighlightAnswer is a language model answer with five valid
// highlights and a few lines the parser must skip.
func GetTestHighlightAnswer() string {
	return `Here are the highlights:
[00:10] Opening statement on the new release
[01:05] Surprising benchmark result
not a highlight line
[1:02:03] malformed timestamp
[02:15] Key point about technology impact
[03:30] Audience question
[04:45] Closing remarks
[05:00] One too many`
}
