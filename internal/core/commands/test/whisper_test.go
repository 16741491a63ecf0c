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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
	test "github.com/jaycherian/gcp-go-highlight-clipper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyFetcher fails the first failures downloads, then writes a model file.
type flakyFetcher struct {
	failures int
	calls    int
	urls     []string
}

func (f *flakyFetcher) Fetch(_ context.Context, url string, dest string) error {
	f.calls++
	f.urls = append(f.urls, url)
	if f.calls <= f.failures {
		return fmt.Errorf("connection reset (attempt %d)", f.calls)
	}
	return os.WriteFile(dest, []byte("ggml"), 0o644)
}

func foundBinary(file string) (string, error) { return "/usr/local/bin/" + file, nil }

func newWhisper(t *testing.T, fetcher *flakyFetcher) *commands.WhisperTranscriber {
	t.Helper()
	config := test.GetTempConfig(t)
	w := commands.NewWhisperTranscriber(config.Transcription)
	w.WorkDir = t.TempDir()
	w.Fetch = fetcher.Fetch
	w.LookPath = foundBinary
	return w
}

func TestLoadModelRetriesUntilDownloaded(t *testing.T) {
	fetcher := &flakyFetcher{failures: 2}
	w := newWhisper(t, fetcher)

	require.NoError(t, w.LoadModel(context.Background()))
	assert.Equal(t, 3, fetcher.calls)
	assert.FileExists(t, w.ModelPath())
	assert.NoFileExists(t, w.ModelPath()+".part")
	assert.Contains(t, fetcher.urls[0], "ggml-base.bin")

	// a loaded model is not fetched again
	require.NoError(t, w.LoadModel(context.Background()))
	assert.Equal(t, 3, fetcher.calls)
}

func TestLoadModelGivesUpAfterLastAttempt(t *testing.T) {
	fetcher := &flakyFetcher{failures: 10}
	w := newWhisper(t, fetcher)

	err := w.LoadModel(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, fetcher.calls)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to load whisper model after 3 attempts: "), err.Error())
	assert.Contains(t, err.Error(), "connection reset (attempt 3)")
}

func TestLoadModelUsesCachedModel(t *testing.T) {
	fetcher := &flakyFetcher{}
	w := newWhisper(t, fetcher)
	require.NoError(t, os.MkdirAll(filepath.Dir(w.ModelPath()), 0o755))
	require.NoError(t, os.WriteFile(w.ModelPath(), []byte("ggml"), 0o644))

	require.NoError(t, w.LoadModel(context.Background()))
	assert.Zero(t, fetcher.calls)
}

func TestLoadModelRequiresBinary(t *testing.T) {
	fetcher := &flakyFetcher{}
	w := newWhisper(t, fetcher)
	w.LookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }

	err := w.LoadModel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Zero(t, fetcher.calls)
}

func TestWhisperArgs(t *testing.T) {
	w := newWhisper(t, &flakyFetcher{})
	args := strings.Join(w.Args("/tmp/a.wav", "/tmp/out"), " ")
	assert.Contains(t, args, "-f /tmp/a.wav")
	assert.Contains(t, args, "-l en")
	assert.Contains(t, args, "-bs 3")
	assert.Contains(t, args, "-bo 3")
	assert.Contains(t, args, "-otxt")
	assert.Contains(t, args, "-of /tmp/out")
	assert.True(t, strings.HasSuffix(args, "-ng"))
}

func TestTranscribe(t *testing.T) {
	w := newWhisper(t, &flakyFetcher{})
	runner := &test.RecordingRunner{}
	w.Runner = runner.Run

	var gotName string
	w.Exec = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		for i, a := range args {
			if a == "-of" {
				return nil, os.WriteFile(args[i+1]+".txt", []byte(" Welcome back.\n And now the news.\n"), 0o644)
			}
		}
		return nil, errors.New("no -of flag")
	}

	text, err := w.Transcribe(context.Background(), "/videos/news.mp4")
	require.NoError(t, err)
	assert.Equal(t, "Welcome back. And now the news.", text)
	assert.Equal(t, "whisper-cli", gotName)
	require.Len(t, runner.Calls(), 1)
	assert.Contains(t, runner.Calls()[0], "-i /videos/news.mp4")

	entries, err := os.ReadDir(w.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscribeReportsWhisperOutput(t *testing.T) {
	w := newWhisper(t, &flakyFetcher{})
	w.Runner = (&test.RecordingRunner{}).Run
	w.Exec = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("error: failed to read WAV file"), errors.New("exit status 2")
	}

	_, err := w.Transcribe(context.Background(), "/videos/news.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 2")
	assert.Contains(t, err.Error(), "failed to read WAV file")
}

func TestTranscribeFailsOnAudioExtraction(t *testing.T) {
	w := newWhisper(t, &flakyFetcher{})
	w.Runner = (&test.RecordingRunner{FailOn: []string{"pcm_s16le"}}).Run
	w.Exec = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("whisper must not run without audio")
		return nil, nil
	}

	_, err := w.Transcribe(context.Background(), "/videos/news.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio extraction failed")
}

func TestMediaTranscribeRegistersWhisperWorkFiles(t *testing.T) {
	w := newWhisper(t, &flakyFetcher{})
	w.Runner = (&test.RecordingRunner{CreateOutputs: true}).Run
	w.Exec = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		for i, a := range args {
			if a == "-of" {
				return nil, os.WriteFile(args[i+1]+".txt", []byte("Tracked run."), 0o644)
			}
		}
		return nil, errors.New("no -of flag")
	}
	cmd := commands.NewMediaTranscribe("transcribe", w, "")

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(commands.GetSourceFileParameterName(), "/videos/news.mp4")
	cmd.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, "Tracked run.", chCtx.Get(commands.GetTranscriptParameterName()))

	files := chCtx.GetTempFiles()
	require.Len(t, files, 2)
	assert.True(t, strings.HasPrefix(filepath.Base(files[0]), "audio_"))
	assert.True(t, strings.HasSuffix(files[1], ".txt"))
	for _, f := range files {
		assert.FileExists(t, f)
	}

	chCtx.Close()
	entries, err := os.ReadDir(w.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
