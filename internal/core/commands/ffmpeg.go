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

// This file contains the shared plumbing for every ffmpeg and ffprobe call:
// running a compiled ffmpeg-go stream under a context, probing durations and
// extracting speech audio for transcription.
package commands

import (
	"bytes"
	goctx "context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const stderrTailBytes = 2048

// StreamRunner executes a fully built ffmpeg-go stream. Tests replace it to
// inspect arguments without an ffmpeg binary.
type StreamRunner func(ctx goctx.Context, stream *ffmpeg.Stream) error

// DurationProber returns the duration of a media file in seconds.
type DurationProber func(ctx goctx.Context, path string) (float64, error)

// RunStream compiles stream into an ffmpeg command and runs it, killing the
// process when ctx is cancelled. The tail of stderr is attached to errors.
func RunStream(ctx goctx.Context, stream *ffmpeg.Stream) error {
	cmd := stream.Compile()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting ffmpeg: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error running ffmpeg: %w: %s", err, tail(stderr.String(), stderrTailBytes))
		}
		return nil
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbeDuration reads format.duration from ffprobe JSON output.
func ParseProbeDuration(probeJSON string) (float64, error) {
	var result probeResult
	if err := json.Unmarshal([]byte(probeJSON), &result); err != nil {
		return 0, fmt.Errorf("error decoding ffprobe output: %w", err)
	}
	if result.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe output has no format duration")
	}
	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", result.Format.Duration, err)
	}
	return duration, nil
}

// ProbeDuration runs ffprobe on path. ffmpeg-go's probe has no context
// support, so cancellation is only observed before the call.
func ProbeDuration(ctx goctx.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("error running ffprobe on %s: %w", path, err)
	}
	return ParseProbeDuration(out)
}

// SpeechAudioStream extracts 16 kHz mono PCM, the input format whisper.cpp
// expects.
func SpeechAudioStream(videoPath string, wavPath string) *ffmpeg.Stream {
	return ffmpeg.Input(videoPath).
		Output(wavPath, ffmpeg.KwArgs{
			"vn":  "",
			"ar":  16000,
			"ac":  1,
			"c:a": "pcm_s16le",
		}).
		OverWriteOutput()
}
