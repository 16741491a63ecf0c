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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/commands"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	test "github.com/jaycherian/gcp-go-highlight-clipper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func newTranscoder(t *testing.T, runner commands.StreamRunner) (*commands.MediaTranscoder, string) {
	t.Helper()
	config := test.GetConfig()
	out := t.TempDir()
	transcoder := commands.NewMediaTranscoder(config.Transcoder, out)
	transcoder.WorkDir = t.TempDir()
	transcoder.Runner = runner
	transcoder.NewID = func() string { return "0000-fixed" }
	return transcoder, out
}

var demoHighlight = &model.Highlight{Start: 5, End: 40, Description: "Opening statement"}

func TestRenderRunsAllSteps(t *testing.T) {
	runner := &test.RecordingRunner{CreateOutputs: true}
	transcoder, out := newTranscoder(t, runner.Run)

	clip, err := transcoder.Render(context.Background(), "/videos/talk.mp4", 1, demoHighlight)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "clip_1_0000-fixed.mp4"), clip.Path)
	assert.FileExists(t, clip.Path)
	assert.Same(t, demoHighlight, clip.Highlight)

	calls := runner.Calls()
	require.Len(t, calls, 5)

	assert.Contains(t, calls[0], "-ss 5.000")
	assert.Contains(t, calls[0], "-t 35.000")
	assert.Contains(t, calls[0], "-i /videos/talk.mp4")
	assert.Contains(t, calls[0], "-c:a aac")
	assert.Contains(t, calls[0], "-c:v libx264")
	assert.Contains(t, calls[0], "-preset fast")
	assert.Contains(t, calls[0], "-strict experimental")
	assert.Contains(t, calls[0], "segment_1_0000-fixed.mp4")

	assert.Contains(t, calls[1], "-f lavfi")
	assert.Contains(t, calls[1], "color=white:s=640x360")
	assert.Contains(t, calls[1], "drawtext")
	assert.Contains(t, calls[1], "fontcolor=black")
	assert.Contains(t, calls[1], "expansion=none")
	assert.Contains(t, calls[1], "-vframes 1")
	assert.Contains(t, calls[1], "title_1_0000-fixed.png")

	assert.Contains(t, calls[2], "-loop 1")
	assert.Contains(t, calls[2], "-pix_fmt yuv420p")
	assert.Contains(t, calls[2], "anullsrc")
	assert.Contains(t, calls[2], "-c:a aac")
	assert.Contains(t, calls[2], "title_1_0000-fixed.mp4")

	assert.Contains(t, calls[3], "-f concat")
	assert.Contains(t, calls[3], "-safe 0")
	assert.Contains(t, calls[3], "-c copy")

	assert.Contains(t, calls[4], "fontcolor=white")
	assert.Contains(t, calls[4], "borderw=2")
	assert.Contains(t, calls[4], "expansion=none")
	assert.Contains(t, calls[4], "0:a?")
	assert.Contains(t, calls[4], "clip_1_0000-fixed.mp4")

	for _, c := range calls {
		assert.Contains(t, c, "-y")
	}
	entries, err := os.ReadDir(transcoder.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "intermediate files are removed")
}

// concatSpy records the concat list contents before the list is removed.
type concatSpy struct {
	test.RecordingRunner
	lists []string
}

func (s *concatSpy) Run(ctx context.Context, stream *ffmpeg.Stream) error {
	args := stream.GetArgs()
	for i, a := range args {
		if a == "-i" && i+1 < len(args) && strings.HasSuffix(args[i+1], ".txt") {
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return err
			}
			s.lists = append(s.lists, string(data))
		}
	}
	return s.RecordingRunner.Run(ctx, stream)
}

func TestRenderWithoutTitleCardWhenCardFails(t *testing.T) {
	spy := &concatSpy{RecordingRunner: test.RecordingRunner{FailOn: []string{"lavfi"}}}
	transcoder, _ := newTranscoder(t, spy.Run)

	clip, err := transcoder.Render(context.Background(), "/videos/talk.mp4", 2, demoHighlight)
	require.NoError(t, err)
	assert.NotNil(t, clip)

	assert.Len(t, spy.Calls(), 4)
	require.Len(t, spy.lists, 1)
	assert.Equal(t, 1, strings.Count(spy.lists[0], "file '"))
	assert.Contains(t, spy.lists[0], "segment_2_0000-fixed.mp4")
}

func TestRenderWithoutTitleCardWhenCardVideoFails(t *testing.T) {
	spy := &concatSpy{RecordingRunner: test.RecordingRunner{FailOn: []string{"-loop 1"}, CreateOutputs: true}}
	transcoder, out := newTranscoder(t, spy.Run)

	clip, err := transcoder.Render(context.Background(), "/videos/talk.mp4", 4, demoHighlight)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "clip_4_0000-fixed.mp4"), clip.Path)

	assert.Len(t, spy.Calls(), 5)
	require.Len(t, spy.lists, 1)
	assert.Equal(t, 1, strings.Count(spy.lists[0], "file '"))
	assert.Contains(t, spy.lists[0], "segment_4_0000-fixed.mp4")

	// the title card image from step 2 is cleaned up too
	entries, err := os.ReadDir(transcoder.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRenderKeepsPercentSignsLiteral(t *testing.T) {
	runner := &test.RecordingRunner{}
	transcoder, _ := newTranscoder(t, runner.Run)
	highlight := &model.Highlight{Start: 10, End: 45, Description: "Revenue up 40% this quarter"}

	_, err := transcoder.Render(context.Background(), "/videos/earnings.mp4", 1, highlight)
	require.NoError(t, err)
	for _, i := range []int{1, 4} {
		assert.Contains(t, runner.Calls()[i], "40%")
		assert.Contains(t, runner.Calls()[i], "expansion=none")
	}
}

func TestRenderConcatListOrdersCardFirst(t *testing.T) {
	spy := &concatSpy{}
	transcoder, _ := newTranscoder(t, spy.Run)

	_, err := transcoder.Render(context.Background(), "/videos/talk.mp4", 3, demoHighlight)
	require.NoError(t, err)
	require.Len(t, spy.lists, 1)
	lines := strings.Split(strings.TrimSpace(spy.lists[0]), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "title_3_0000-fixed.mp4")
	assert.Contains(t, lines[1], "segment_3_0000-fixed.mp4")
}

func TestRenderFailures(t *testing.T) {
	cases := map[string]struct {
		failOn string
		calls  int
		reason string
	}{
		"segment": {failOn: "-ss", calls: 1, reason: "segment extraction failed"},
		"concat":  {failOn: "-f concat", calls: 4, reason: "concatenation failed"},
		"caption": {failOn: "fontcolor=white", calls: 5, reason: "caption burn-in failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &test.RecordingRunner{FailOn: []string{tc.failOn}}
			transcoder, out := newTranscoder(t, runner.Run)

			clip, err := transcoder.Render(context.Background(), "/videos/talk.mp4", 1, demoHighlight)
			assert.Nil(t, clip)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.reason)
			assert.Len(t, runner.Calls(), tc.calls)
			assert.NoFileExists(t, filepath.Join(out, "clip_1_0000-fixed.mp4"))
		})
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	require.NoError(t, commands.WriteConcatList(list, filepath.Join(dir, "it's.mp4")))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "file '"+filepath.Join(dir, `it'\''s.mp4`)+"'\n", string(data))
}

func TestSpeechAudioStream(t *testing.T) {
	args := strings.Join(commands.SpeechAudioStream("in.mp4", "out.wav").GetArgs(), " ")
	assert.Contains(t, args, "-i in.mp4")
	assert.Contains(t, args, "-vn")
	assert.Contains(t, args, "-ar 16000")
	assert.Contains(t, args, "-ac 1")
	assert.Contains(t, args, "-c:a pcm_s16le")
	assert.Contains(t, args, "out.wav")
}

func TestParseProbeDuration(t *testing.T) {
	d, err := commands.ParseProbeDuration(`{"streams": [], "format": {"filename": "a.mp4", "duration": "184.533000"}}`)
	require.NoError(t, err)
	assert.InDelta(t, 184.533, d, 1e-9)

	_, err = commands.ParseProbeDuration(`{"format": {}}`)
	assert.Error(t, err)
	_, err = commands.ParseProbeDuration(`not json`)
	assert.Error(t, err)
	_, err = commands.ParseProbeDuration(`{"format": {"duration": "N/A"}}`)
	assert.Error(t, err)
}
