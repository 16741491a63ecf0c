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

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyFilename        = errors.New("no usable filename")
	ErrDisallowedExtension  = errors.New("file type not allowed")
	ErrUploadTooLarge       = errors.New("upload exceeds the size limit")
	unsafeFilenameCharacter = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// SecureFilename reduces name to a safe ASCII base name: accents are
// decomposed and dropped, path separators and whitespace become underscores,
// anything outside [A-Za-z0-9_.-] is removed and leading or trailing dots and
// underscores are trimmed. The result may be empty.
func SecureFilename(name string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 128 {
			ascii.WriteRune(r)
		}
	}
	s := strings.NewReplacer("/", " ", `\`, " ").Replace(ascii.String())
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameCharacter.ReplaceAllString(s, "")
	return strings.Trim(s, "._")
}

// UploadStore writes uploaded videos into the uploads folder.
type UploadStore struct {
	folder   string
	allowed  map[string]bool
	maxBytes int64
}

func NewUploadStore(folder string, allowedExtensions []string, maxBytes int64) *UploadStore {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &UploadStore{folder: folder, allowed: allowed, maxBytes: maxBytes}
}

// Allowed reports whether filename has an allowed extension, ignoring case.
func (s *UploadStore) Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return ext != "" && s.allowed[ext]
}

func (s *UploadStore) MaxBytes() int64 {
	return s.maxBytes
}

// Save sanitizes filename and copies r into the uploads folder. An existing
// file with the same name is never overwritten; the new file gets a UUID
// prefix instead. More than MaxBytes of input is ErrUploadTooLarge and
// leaves nothing behind.
func (s *UploadStore) Save(filename string, r io.Reader) (string, error) {
	name := SecureFilename(filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	if !s.Allowed(name) {
		return "", fmt.Errorf("%w: %s", ErrDisallowedExtension, filename)
	}
	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		return "", err
	}

	file, path, err := s.create(name)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(file, io.LimitReader(r, s.maxBytes+1))
	closeErr := file.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("error writing upload: %w", err)
	case written > s.maxBytes:
		_ = os.Remove(path)
		return "", ErrUploadTooLarge
	case closeErr != nil:
		_ = os.Remove(path)
		return "", closeErr
	}
	return path, nil
}

func (s *UploadStore) create(name string) (*os.File, string, error) {
	path := filepath.Join(s.folder, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		path = filepath.Join(s.folder, uuid.NewString()+"_"+name)
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return nil, "", fmt.Errorf("error creating upload file: %w", err)
	}
	return file, path, nil
}
