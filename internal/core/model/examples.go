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

// GetExampleHighlight is the one-shot example shown to the language model so
// it answers in the "[MM:SS] Description" line format.
func GetExampleHighlight() *Highlight {
	return &Highlight{
		Start:       135,
		End:         165,
		Description: "Key point about technology impact",
	}
}

// FormatTimestamp renders seconds as the MM:SS token the model is asked for.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// GetExampleHighlightLine renders the example highlight as a prompt line,
// e.g. "[02:15] Key point about technology impact".
func GetExampleHighlightLine() string {
	h := GetExampleHighlight()
	return fmt.Sprintf("[%s] %s", FormatTimestamp(h.Start), h.Description)
}
