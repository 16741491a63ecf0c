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

package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FakeTextGenerator returns Answer, or Err when set, and records prompts.
type FakeTextGenerator struct {
	Answer string
	Err    error

	mu      sync.Mutex
	Prompts []string
}

func (f *FakeTextGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	return f.Answer, f.Err
}

// FakeTranscriber returns Text. LoadErr fails LoadModel and Err fails
// Transcribe.
type FakeTranscriber struct {
	Text    string
	LoadErr error
	Err     error
	Block   chan struct{} // when set, Transcribe waits for it to close

	mu        sync.Mutex
	LoadCalls int
	Sources   []string
}

func (f *FakeTranscriber) LoadModel(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoadCalls++
	return f.LoadErr
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, videoPath string) (string, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sources = append(f.Sources, videoPath)
	return f.Text, f.Err
}

// FakeRenderer writes a small file per clip into Dir. Indexes listed in Fail
// (1-based) return an error; Panic indexes panic.
type FakeRenderer struct {
	Dir   string
	Fail  map[int]bool
	Panic map[int]bool

	mu       sync.Mutex
	Rendered []int
}

func (f *FakeRenderer) Render(_ context.Context, _ string, index int, highlight *model.Highlight) (*model.RenderedClip, error) {
	if f.Panic[index] {
		panic(fmt.Sprintf("renderer exploded on clip %d", index))
	}
	if f.Fail[index] {
		return nil, fmt.Errorf("ffmpeg failed on clip %d", index)
	}
	path := filepath.Join(f.Dir, fmt.Sprintf("clip_%d_fake.mp4", index))
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Rendered = append(f.Rendered, index)
	f.mu.Unlock()
	return &model.RenderedClip{Path: path, Highlight: highlight}, nil
}

// RecordingRunner captures the ffmpeg arguments of every stream it is asked
// to run. A stream whose arguments contain any FailOn substring fails. With
// CreateOutputs set, a successful stream writes a small file at its output
// path, as ffmpeg would.
type RecordingRunner struct {
	FailOn        []string
	CreateOutputs bool

	mu   sync.Mutex
	Args [][]string
}

func (r *RecordingRunner) Run(_ context.Context, stream *ffmpeg.Stream) error {
	args := stream.GetArgs()
	r.mu.Lock()
	r.Args = append(r.Args, args)
	r.mu.Unlock()

	joined := strings.Join(args, " ")
	for _, f := range r.FailOn {
		if strings.Contains(joined, f) {
			return fmt.Errorf("simulated ffmpeg failure on %q", f)
		}
	}
	if r.CreateOutputs {
		if out := outputPath(args); out != "" {
			return os.WriteFile(out, []byte("ffmpeg output"), 0o644)
		}
	}
	return nil
}

// outputPath is the last argument that is not the overwrite flag.
func outputPath(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if args[i] != "-y" {
			return args[i]
		}
	}
	return ""
}

// Calls returns the recorded argument lists joined by spaces.
func (r *RecordingRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Args))
	for _, a := range r.Args {
		out = append(out, strings.Join(a, " "))
	}
	return out
}
