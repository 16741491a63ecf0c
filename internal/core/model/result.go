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

package model

import "fmt"

// FailureKind classifies how a processing run ended.
type FailureKind int

const (
	// FailureNone is a successful run.
	FailureNone FailureKind = iota
	// FailureInitialization means the processor could not be constructed,
	// e.g. the transcription model failed to load after all retries.
	FailureInitialization
	// FailureProcessing means transcription, extraction or rendering failed
	// as a unit.
	FailureProcessing
	// FailureSaveClip means a Clip row could not be written.
	FailureSaveClip
	// FailureUnexpected is everything else, including panics.
	FailureUnexpected
)

var failurePrefixes = map[FailureKind]string{
	FailureInitialization: "Failed to initialize video processor",
	FailureProcessing:     "Failed to process video",
	FailureSaveClip:       "Failed to save clip",
	FailureUnexpected:     "Unexpected error",
}

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureInitialization:
		return "initialization"
	case FailureProcessing:
		return "processing"
	case FailureSaveClip:
		return "save_clip"
	case FailureUnexpected:
		return "unexpected"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// RunResult is the typed outcome of a stage or of a whole run.
type RunResult struct {
	Kind  FailureKind
	Cause error
	Clips int // persisted clips, set on success
}

// Succeeded returns a successful result.
func Succeeded(clips int) RunResult {
	return RunResult{Kind: FailureNone, Clips: clips}
}

// Failed returns a failed result of the given kind.
func Failed(kind FailureKind, cause error) RunResult {
	return RunResult{Kind: kind, Cause: cause}
}

func (r RunResult) OK() bool {
	return r.Kind == FailureNone
}

// Status renders the terminal status label for the result:
// "processed" on success, otherwise "error: <prefix>: <cause>".
func (r RunResult) Status() string {
	if r.OK() {
		return StatusProcessed
	}
	prefix, ok := failurePrefixes[r.Kind]
	if !ok {
		prefix = failurePrefixes[FailureUnexpected]
	}
	cause := "unknown cause"
	if r.Cause != nil {
		cause = r.Cause.Error()
	}
	return fmt.Sprintf("%s%s: %s", StatusErrorPrefix, prefix, cause)
}

// Error makes a failed RunResult usable where an error is expected.
func (r RunResult) Error() string {
	return r.Status()
}

func (r RunResult) Unwrap() error {
	return r.Cause
}
