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

package services

// BigQuery statements for the clip catalog. %s is the fully qualified table
// name; values are bound as named parameters.
const (
	QryClipsByVideo = "SELECT clip_id, video_id, video_filename, clip_name, archive_uri, start_time, end_time, description, created_at FROM `%s` WHERE video_id = @video_id ORDER BY clip_id"

	QryRecentClips = "SELECT clip_id, video_id, video_filename, clip_name, archive_uri, start_time, end_time, description, created_at FROM `%s` ORDER BY created_at DESC LIMIT @limit"
)
