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

// Package commands holds the cor commands that make up the highlight clip
// pipeline and the adapters they drive (whisper.cpp, Gemini, ffmpeg).
package commands

// GetVideoIDParameterName is the context key holding the uint id of the
// Video being processed. It is absent for ad hoc runs from the CLI.
func GetVideoIDParameterName() string {
	return "__VIDEO_ID__"
}

// GetSourceFileParameterName is the context key holding the local path of
// the source video.
func GetSourceFileParameterName() string {
	return "__SOURCE_FILE__"
}

// GetTranscriptParameterName is the context key holding the transcript text.
func GetTranscriptParameterName() string {
	return "__TRANSCRIPT__"
}

// GetHighlightsParameterName is the context key holding []*model.Highlight.
func GetHighlightsParameterName() string {
	return "__HIGHLIGHTS__"
}

// GetRenderedClipsParameterName is the context key holding
// []*model.RenderedClip.
func GetRenderedClipsParameterName() string {
	return "__RENDERED_CLIPS__"
}

// GetArchivedClipsParameterName is the context key holding the
// map[clip path]object name written by the clip archive.
func GetArchivedClipsParameterName() string {
	return "__ARCHIVED_CLIPS__"
}

// GetVideoParameterName is the context key holding the *model.Video a
// post-processing chain works on.
func GetVideoParameterName() string {
	return "__VIDEO__"
}

// GetPersistedClipsParameterName is the context key holding the []*model.Clip
// rows saved for the video.
func GetPersistedClipsParameterName() string {
	return "__PERSISTED_CLIPS__"
}
