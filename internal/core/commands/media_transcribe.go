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

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/cor"
)

// MediaTranscribe is a cor command: source path in, transcript text out.
// When transcriptsFolder is set the transcript is also written to
// "<folder>/<video id>.txt", or "<source base name>.txt" for runs without a
// video id. Failing to write that file only logs. Work files of a
// TrackedTranscriber are registered on the chain context and removed when
// the context is closed.
type MediaTranscribe struct {
	cor.BaseCommand
	transcriber       Transcriber
	transcriptsFolder string
}

func NewMediaTranscribe(name string, transcriber Transcriber, transcriptsFolder string) *MediaTranscribe {
	out := &MediaTranscribe{
		BaseCommand:       *cor.NewBaseCommand(name),
		transcriber:       transcriber,
		transcriptsFolder: transcriptsFolder,
	}
	out.InputParamName = GetSourceFileParameterName()
	out.OutputParamName = GetTranscriptParameterName()
	return out
}

// TranscriptPath returns where the transcript of the current run is kept.
func (m *MediaTranscribe) TranscriptPath(context cor.Context, source string) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if id, ok := context.Get(GetVideoIDParameterName()).(uint); ok {
		name = fmt.Sprintf("%d", id)
	}
	return filepath.Join(m.transcriptsFolder, name+".txt")
}

func (m *MediaTranscribe) Execute(context cor.Context) {
	source, ok := context.Get(m.GetInputParam()).(string)
	if !ok {
		m.Fail(context, fmt.Errorf("expected source path, got %T", context.Get(m.GetInputParam())))
		return
	}

	var transcript string
	var err error
	if tracked, ok := m.transcriber.(TrackedTranscriber); ok {
		transcript, err = tracked.TranscribeTracked(context.GetContext(), source, context.AddTempFile)
	} else {
		transcript, err = m.transcriber.Transcribe(context.GetContext(), source)
	}
	if err != nil {
		m.Fail(context, fmt.Errorf("transcription failed: %w", err))
		return
	}
	slog.InfoContext(context.GetContext(), "transcription complete", "source", source, "chars", len(transcript))

	if m.transcriptsFolder != "" {
		path := m.TranscriptPath(context, source)
		if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
			slog.WarnContext(context.GetContext(), "could not save transcript", "path", path, "error", err)
		}
	}
	m.Succeed(context, transcript)
}
