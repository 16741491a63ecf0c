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

// This file renders one highlight into a finished clip. Every step is a
// separate ffmpeg invocation and must succeed before the next starts:
//
//  1. Cut the highlight window out of the source (aac / libx264, fast preset).
//  2. Draw the description centered on a blank title card image.
//  3. Loop the title card image into a short video with a silent track.
//  4. Concatenate the title card video and the segment with stream copy.
//  5. Burn the description in as a caption near the bottom edge.
//  6. Remove the intermediate files.
//
// If step 2 or 3 fails the clip is rendered without a title card. Failures of
// the other steps fail the clip. Artifacts of one call share a UUID.
package commands

import (
	goctx "context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/cloud"
	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const silentAudioSource = "anullsrc=channel_layout=stereo:sample_rate=44100"

// HighlightRenderer renders one highlight of source into a clip.
type HighlightRenderer interface {
	Render(ctx goctx.Context, source string, index int, highlight *model.Highlight) (*model.RenderedClip, error)
}

// MediaTranscoder is the ffmpeg backed HighlightRenderer.
type MediaTranscoder struct {
	config    cloud.Transcoder
	outputDir string
	WorkDir   string // intermediate files; defaults to os.TempDir()
	Runner    StreamRunner
	NewID     func() string
}

func NewMediaTranscoder(config cloud.Transcoder, outputDir string) *MediaTranscoder {
	return &MediaTranscoder{
		config:    config,
		outputDir: outputDir,
		WorkDir:   os.TempDir(),
		Runner:    RunStream,
		NewID:     uuid.NewString,
	}
}

// clipArtifacts names every file produced for one highlight.
type clipArtifacts struct {
	segment   string
	titleCard string
	cardVideo string
	concat    string
	list      string
	final     string
}

func (t *MediaTranscoder) artifacts(index int) clipArtifacts {
	id := t.NewID()
	work := func(prefix, ext string) string {
		return filepath.Join(t.WorkDir, fmt.Sprintf("%s_%d_%s.%s", prefix, index, id, ext))
	}
	return clipArtifacts{
		segment:   work("segment", "mp4"),
		titleCard: work("title", "png"),
		cardVideo: work("title", "mp4"),
		concat:    work("concat", "mp4"),
		list:      work("concat", "txt"),
		final:     filepath.Join(t.outputDir, fmt.Sprintf("clip_%d_%s.mp4", index, id)),
	}
}

// SegmentStream cuts [start, end) out of source.
func (t *MediaTranscoder) SegmentStream(source string, highlight *model.Highlight, out string) *ffmpeg.Stream {
	return ffmpeg.Input(source, ffmpeg.KwArgs{
		"ss": formatSeconds(highlight.Start),
		"t":  formatSeconds(highlight.Duration()),
	}).Output(out, ffmpeg.KwArgs{
		"c:a":    "aac",
		"c:v":    "libx264",
		"preset": "fast",
		"strict": "experimental",
	}).OverWriteOutput()
}

// TitleCardStream draws text centered on a single frame of solid color.
func (t *MediaTranscoder) TitleCardStream(text string, out string) *ffmpeg.Stream {
	source := fmt.Sprintf("color=%s:s=%s", t.config.TitleCardColor, t.config.TitleCardSize)
	return ffmpeg.Input(source, ffmpeg.KwArgs{
		"f": "lavfi",
		"t": formatSeconds(t.config.TitleCardSeconds),
	}).Filter("drawtext", ffmpeg.Args{}, ffmpeg.KwArgs{
		"fontfile":  t.config.FontFile,
		"text":      text,
		"expansion": "none",
		"fontsize":  t.config.FontSize,
		"fontcolor": "black",
		"x":         "(w-text_w)/2",
		"y":         "(h-text_h)/2",
	}).Output(out, ffmpeg.KwArgs{"vframes": 1}).OverWriteOutput()
}

// TitleVideoStream loops the title card image for TitleCardSeconds and pairs
// it with a silent stereo track, so the concatenated clip keeps an audio
// stream when the card comes first.
func (t *MediaTranscoder) TitleVideoStream(image string, out string) *ffmpeg.Stream {
	seconds := formatSeconds(t.config.TitleCardSeconds)
	card := ffmpeg.Input(image, ffmpeg.KwArgs{
		"loop": 1,
		"t":    seconds,
	})
	silence := ffmpeg.Input(silentAudioSource, ffmpeg.KwArgs{"f": "lavfi"})
	return ffmpeg.Output([]*ffmpeg.Stream{card, silence}, out, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"pix_fmt": "yuv420p",
		"c:a":     "aac",
		"t":       seconds,
	}).OverWriteOutput()
}

// ConcatStream joins the files named in list without re-encoding.
func (t *MediaTranscoder) ConcatStream(list string, out string) *ffmpeg.Stream {
	return ffmpeg.Input(list, ffmpeg.KwArgs{
		"f":    "concat",
		"safe": 0,
	}).Output(out, ffmpeg.KwArgs{"c": "copy"}).OverWriteOutput()
}

// CaptionStream burns text into the bottom of the video and keeps audio when
// the input has any.
func (t *MediaTranscoder) CaptionStream(input string, text string, out string) *ffmpeg.Stream {
	in := ffmpeg.Input(input)
	video := in.Video().Filter("drawtext", ffmpeg.Args{}, ffmpeg.KwArgs{
		"fontfile":    t.config.FontFile,
		"text":        text,
		"expansion":   "none",
		"fontsize":    t.config.FontSize,
		"fontcolor":   "white",
		"borderw":     t.config.CaptionBorderWidth,
		"bordercolor": "black",
		"x":           "(w-text_w)/2",
		"y":           fmt.Sprintf("h-%d", t.config.CaptionBottomOffset),
	})
	return ffmpeg.Output([]*ffmpeg.Stream{video, in.Get("a?")}, out, ffmpeg.KwArgs{
		"c:v":    "libx264",
		"c:a":    "aac",
		"preset": "fast",
	}).OverWriteOutput()
}

// WriteConcatList writes an ffmpeg concat demuxer list for files.
func WriteConcatList(list string, files ...string) error {
	var sb strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(list, []byte(sb.String()), 0o644)
}

// Render runs the six steps for one highlight.
func (t *MediaTranscoder) Render(ctx goctx.Context, source string, index int, highlight *model.Highlight) (*model.RenderedClip, error) {
	a := t.artifacts(index)
	defer removeQuietly(a.segment, a.titleCard, a.cardVideo, a.concat, a.list)
	logger := slog.With("clip", index, "source", source)

	if err := t.Runner(ctx, t.SegmentStream(source, highlight, a.segment)); err != nil {
		return nil, fmt.Errorf("segment extraction failed: %w", err)
	}

	parts := []string{a.segment}
	if err := t.renderTitleCard(ctx, highlight.Description, a); err != nil {
		logger.WarnContext(ctx, "title card failed; rendering clip without it", "error", err)
	} else {
		parts = []string{a.cardVideo, a.segment}
	}

	if err := WriteConcatList(a.list, parts...); err != nil {
		return nil, fmt.Errorf("error writing concat list: %w", err)
	}
	if err := t.Runner(ctx, t.ConcatStream(a.list, a.concat)); err != nil {
		return nil, fmt.Errorf("concatenation failed: %w", err)
	}

	if err := t.Runner(ctx, t.CaptionStream(a.concat, highlight.Description, a.final)); err != nil {
		removeQuietly(a.final)
		return nil, fmt.Errorf("caption burn-in failed: %w", err)
	}

	logger.InfoContext(ctx, "clip rendered", "path", a.final, "start", highlight.Start, "end", highlight.End)
	return &model.RenderedClip{Path: a.final, Highlight: highlight}, nil
}

func (t *MediaTranscoder) renderTitleCard(ctx goctx.Context, text string, a clipArtifacts) error {
	if err := t.Runner(ctx, t.TitleCardStream(text, a.titleCard)); err != nil {
		return err
	}
	return t.Runner(ctx, t.TitleVideoStream(a.titleCard, a.cardVideo))
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}

func removeQuietly(files ...string) {
	for _, f := range files {
		_ = os.Remove(f)
	}
}
