// Package serialize renders a completed run's merged transcript to JSON
// and SRT. Both are pure functions over []types.MergedSegment; neither
// touches I/O.
package serialize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/streamscribe/streamscribe/internal/format"
	"github.com/streamscribe/streamscribe/internal/types"
)

// jsonSegment is the wire shape of one segment in the JSON transcript.
type jsonSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// jsonTranscript is the wire shape of a complete JSON transcript.
type jsonTranscript struct {
	Segments []jsonSegment `json:"segments"`
}

// JSON renders segments as an indented JSON document with "segments": [...].
func JSON(segments []types.MergedSegment) ([]byte, error) {
	out := jsonTranscript{Segments: make([]jsonSegment, len(segments))}
	for i, s := range segments {
		out.Segments[i] = jsonSegment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return json.MarshalIndent(out, "", "  ")
}

// SRT renders segments as a SubRip (.srt) subtitle file: a 1-based cue
// index, a "start --> end" timestamp line in HH:MM:SS,mmm form, the cue
// text, then a blank line.
func SRT(segments []types.MergedSegment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", format.SRTTimestamp(s.Start), format.SRTTimestamp(s.End))
		fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(s.Text))
	}
	return b.String()
}
