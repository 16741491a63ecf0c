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
	"math"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-highlight-clipper/internal/core/model"
)

const (
	DefaultLeadInSeconds = 5.0
	DefaultWindowSeconds = 30.0
	DefaultMaxHighlights = 5
)

// HighlightParser turns the language model's free text answer into
// highlights. Each answer line may carry one or more "[MM:SS] description"
// groups.
type HighlightParser struct {
	LeadInSeconds float64 // subtracted from the timestamp, floored at 0
	WindowSeconds float64 // added to the raw timestamp to form End
	MaxHighlights int
}

// DefaultHighlightParser uses a 5 second lead-in, a 30 second window and
// keeps 5 highlights.
func DefaultHighlightParser() HighlightParser {
	return HighlightParser{
		LeadInSeconds: DefaultLeadInSeconds,
		WindowSeconds: DefaultWindowSeconds,
		MaxHighlights: DefaultMaxHighlights,
	}
}

// ParseHighlights parses text with DefaultHighlightParser.
func ParseHighlights(text string) []*model.Highlight {
	return DefaultHighlightParser().Parse(text)
}

// timestampGroup is a bracketed token that parsed as MM:SS.
type timestampGroup struct {
	open, close int
	seconds     float64
}

// Parse returns at most MaxHighlights highlights in answer order. Lines
// without a usable timestamp are skipped without affecting later lines.
func (p HighlightParser) Parse(text string) []*model.Highlight {
	out := make([]*model.Highlight, 0, p.MaxHighlights)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		groups := findTimestampGroups(line)
		for i, g := range groups {
			if len(out) >= p.MaxHighlights {
				return out
			}
			end := len(line)
			if i+1 < len(groups) {
				end = groups[i+1].open
			}
			h, ok := p.newHighlight(g.seconds, strings.TrimSpace(line[g.close+1:end]))
			if ok {
				out = append(out, h)
			}
		}
	}
	return out
}

func (p HighlightParser) newHighlight(raw float64, description string) (*model.Highlight, bool) {
	start := math.Max(0, raw-p.LeadInSeconds)
	// the window is measured from the raw timestamp, not the lead-in start
	end := raw + p.WindowSeconds
	if end <= start {
		return nil, false
	}
	return &model.Highlight{Start: start, End: end, Description: description}, true
}

// findTimestampGroups returns the timestamp groups of a line. The first
// "[...]" pair decides the line: when its token is not a valid timestamp the
// line has no groups at all. Later pairs that do not parse are left in place
// as part of a description.
func findTimestampGroups(line string) []timestampGroup {
	var groups []timestampGroup
	offset := 0
	for offset < len(line) {
		open := strings.IndexByte(line[offset:], '[')
		if open < 0 {
			break
		}
		open += offset
		closeRel := strings.IndexByte(line[open+1:], ']')
		if closeRel < 0 {
			break
		}
		closeIdx := open + 1 + closeRel
		seconds, ok := ParseTimestamp(line[open+1 : closeIdx])
		if ok {
			groups = append(groups, timestampGroup{open: open, close: closeIdx, seconds: seconds})
		} else if offset == 0 {
			return nil
		}
		offset = closeIdx + 1
	}
	return groups
}

// ParseTimestamp converts "MM:SS" into seconds. The token must hold exactly
// one colon and both sides must be finite numbers; fractional values are
// accepted.
func ParseTimestamp(token string) (float64, bool) {
	if strings.Count(token, ":") != 1 {
		return 0, false
	}
	minutesText, secondsText, _ := strings.Cut(token, ":")
	minutes, err := strconv.ParseFloat(strings.TrimSpace(minutesText), 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(secondsText), 64)
	if err != nil {
		return 0, false
	}
	total := minutes*60 + seconds
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, false
	}
	return total, true
}
