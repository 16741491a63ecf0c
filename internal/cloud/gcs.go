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

package cloud

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// GetGCSObjectName is the context key under which the upload trigger stores
// the GCSObject it decoded.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSPubSubNotification is the JSON payload of a Cloud Storage
// OBJECT_FINALIZE notification. Only the fields the trigger reads are mapped.
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	ContentType string            `json:"contentType"`
	TimeCreated string            `json:"timeCreated"`
	Size        string            `json:"size"`
	MD5Hash     string            `json:"md5Hash"`
	MetaData    map[string]string `json:"metadata"`
}

// GCSObject identifies an object in a bucket.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// BaseName is the last path element of the object name.
func (o *GCSObject) BaseName() string {
	return path.Base(o.Name)
}

// URI renders the object as gs://bucket/name.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ArchiveObjectName joins prefix and file name into an object name, skipping
// an empty prefix.
func ArchiveObjectName(prefix string, parts ...string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{prefix}, parts...)...)
}

// ClipArchiveObject is the archive object name of a clip file of videoID:
// "<prefix>/videos/<id>/<file>".
func ClipArchiveObject(prefix string, videoID uint, clipPath string) string {
	return ArchiveObjectName(prefix, "videos", strconv.FormatUint(uint64(videoID), 10), path.Base(filepath.ToSlash(clipPath)))
}
