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
	"context"
	"fmt"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

// ArchiveService issues V4 signed URLs for clips archived in Cloud Storage.
// When SignerEmail is set, URLs are signed through the IAM credentials API
// as that service account; otherwise the storage client's own credentials
// sign them.
type ArchiveService struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	SignerEmail   string
	Expires       time.Duration
}

// SplitGCSURI splits "gs://bucket/object" into bucket and object.
func SplitGCSURI(uri string) (bucket string, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI format: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI: unable to determine bucket and object from %s", uri)
	}
	return parts[0], parts[1], nil
}

// SignedURLOptions returns the options for a GET URL valid for Expires.
func (s *ArchiveService) SignedURLOptions(ctx context.Context) *storage.SignedURLOptions {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.Expires),
	}
	if s.SignerEmail != "" && s.IAMClient != nil {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: payload,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		}
	}
	return opts
}

// GenerateSignedURL signs a GET URL for gsURI.
func (s *ArchiveService) GenerateSignedURL(ctx context.Context, gsURI string) (string, error) {
	bucket, object, err := SplitGCSURI(gsURI)
	if err != nil {
		return "", err
	}
	u, err := s.StorageClient.Bucket(bucket).SignedURL(object, s.SignedURLOptions(ctx))
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", bucket, object, err)
	}
	return u, nil
}
