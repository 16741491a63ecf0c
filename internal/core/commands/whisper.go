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

// This file adapts the whisper.cpp command line tool into a Transcriber.
//
// Loading makes sure the binary resolves and the ggml model file is cached,
// downloading it on first use. Transcription extracts 16 kHz mono audio with
// ffmpeg and runs whisper.cpp with plain text output.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
)

// Transcriber turns a video file into transcript text.
type Transcriber interface {
	// LoadModel prepares the model. Calling it again after success is cheap.
	LoadModel(ctx goctx.Context) error
	Transcribe(ctx goctx.Context, videoPath string) (string, error)
}

// TrackedTranscriber leaves its work files on disk and reports each one to
// track, so a workflow can remove them when its run ends.
type TrackedTranscriber interface {
	Transcriber
	TranscribeTracked(ctx goctx.Context, videoPath string, track func(path string)) (string, error)
}

// ModelFetcher downloads url into dest.
type ModelFetcher func(ctx goctx.Context, url string, dest string) error

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx goctx.Context, name string, args ...string) ([]byte, error)

// WhisperTranscriber runs whisper.cpp.
type WhisperTranscriber struct {
	config   cloud.Transcription
	WorkDir  string
	Fetch    ModelFetcher
	Exec     CommandRunner
	Runner   StreamRunner
	LookPath func(file string) (string, error)

	mu     sync.Mutex
	loaded bool
}

func NewWhisperTranscriber(config cloud.Transcription) *WhisperTranscriber {
	return &WhisperTranscriber{
		config:   config,
		WorkDir:  os.TempDir(),
		Fetch:    DownloadFile,
		Exec:     ExecCombined,
		Runner:   RunStream,
		LookPath: exec.LookPath,
	}
}

// ModelPath is where the ggml model is cached, e.g. "models/ggml-base.bin".
func (w *WhisperTranscriber) ModelPath() string {
	return filepath.Join(w.config.ModelDir, fmt.Sprintf("ggml-%s.bin", w.config.Model))
}

// LoadModel tries LoadAttempts times, waiting RetryDelaySeconds between
// attempts.
func (w *WhisperTranscriber) LoadModel(ctx goctx.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded {
		return nil
	}

	attempts := max(w.config.LoadAttempts, 1)
	delay := time.Duration(w.config.RetryDelaySeconds) * time.Second
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.ensureModel(ctx); err == nil {
			w.loaded = true
			slog.InfoContext(ctx, "whisper model ready", "model", w.config.Model, "attempt", attempt)
			return nil
		}
		slog.WarnContext(ctx, "whisper model load failed", "attempt", attempt, "of", attempts, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("whisper model load interrupted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed to load whisper model after %d attempts: %w", attempts, err)
}

func (w *WhisperTranscriber) ensureModel(ctx goctx.Context) error {
	if _, err := w.LookPath(w.config.Command); err != nil {
		return fmt.Errorf("whisper binary %q not found: %w", w.config.Command, err)
	}
	modelPath := w.ModelPath()
	if info, err := os.Stat(modelPath); err == nil && info.Size() > 0 {
		return nil
	}
	if w.config.ModelURL == "" {
		return fmt.Errorf("model %s is missing and no model_url is configured", modelPath)
	}
	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		return err
	}
	partial := modelPath + ".part"
	url := fmt.Sprintf(w.config.ModelURL, w.config.Model)
	if err := w.Fetch(ctx, url, partial); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("error downloading %s: %w", url, err)
	}
	return os.Rename(partial, modelPath)
}

// Args builds the whisper.cpp argument list.
func (w *WhisperTranscriber) Args(wavPath string, outPrefix string) []string {
	args := []string{
		"-m", w.ModelPath(),
		"-f", wavPath,
		"-l", w.config.Language,
		"-bs", strconv.Itoa(w.config.BeamSize),
		"-bo", strconv.Itoa(w.config.BestOf),
		"-otxt",
		"-of", outPrefix,
		"-np",
	}
	if w.config.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.config.Threads))
	}
	if !w.config.UseGPU {
		args = append(args, "-ng")
	}
	return args
}

// Transcribe removes its work files before returning.
func (w *WhisperTranscriber) Transcribe(ctx goctx.Context, videoPath string) (string, error) {
	var files []string
	defer func() { removeQuietly(files...) }()
	return w.TranscribeTracked(ctx, videoPath, func(path string) { files = append(files, path) })
}

// TranscribeTracked hands every work file to track before creating it and
// leaves removing them to the caller.
func (w *WhisperTranscriber) TranscribeTracked(ctx goctx.Context, videoPath string, track func(path string)) (string, error) {
	if err := w.LoadModel(ctx); err != nil {
		return "", err
	}
	id := uuid.NewString()
	wavPath := filepath.Join(w.WorkDir, fmt.Sprintf("audio_%s.wav", id))
	outPrefix := filepath.Join(w.WorkDir, fmt.Sprintf("transcript_%s", id))
	track(wavPath)
	track(outPrefix + ".txt")

	if err := w.Runner(ctx, SpeechAudioStream(videoPath, wavPath)); err != nil {
		return "", fmt.Errorf("audio extraction failed: %w", err)
	}
	if out, err := w.Exec(ctx, w.config.Command, w.Args(wavPath, outPrefix)...); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w: %s", err, tail(string(out), stderrTailBytes))
	}
	text, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", fmt.Errorf("error reading transcript: %w", err)
	}
	return NormalizeTranscript(string(text)), nil
}

// NormalizeTranscript joins whisper's per-segment lines into one paragraph.
func NormalizeTranscript(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ExecCombined runs name with args and returns stdout and stderr together.
func ExecCombined(ctx goctx.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DownloadFile streams url into dest.
func DownloadFile(ctx goctx.Context, url string, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download: status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Join(err, out.Close())
	}
	return out.Close()
}
