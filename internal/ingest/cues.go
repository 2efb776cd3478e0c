package ingest

import (
	"fmt"
	"sort"
	"strings"

	"intervox/internal/webhook"
)

// lastCueTail pads the final cue, which has no successor to borrow an end
// time from.
const lastCueTail = 2.0

type Cue struct {
	Start float64
	End   float64
	Role  string
	Text  string
}

// BuildCues orders transcript entries by their offset and synthesizes cue
// end times: each cue ends where the next one starts. Input order is not
// trusted; the upstream source interleaves speakers freely.
func BuildCues(entries []webhook.TranscriptEntry) []Cue {
	sorted := make([]webhook.TranscriptEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimeInCallSecs < sorted[j].TimeInCallSecs
	})

	cues := make([]Cue, 0, len(sorted))
	for i, entry := range sorted {
		end := entry.TimeInCallSecs + lastCueTail
		if i+1 < len(sorted) {
			end = sorted[i+1].TimeInCallSecs
		}
		cues = append(cues, Cue{
			Start: entry.TimeInCallSecs,
			End:   end,
			Role:  entry.Role,
			Text:  entry.Message,
		})
	}
	return cues
}

// FormatWebVTT serializes cues as a WebVTT caption block.
func FormatWebVTT(cues []Cue) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, cue := range cues {
		b.WriteString("\n")
		b.WriteString(vttTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(vttTimestamp(cue.End))
		b.WriteString("\n")
		if cue.Role != "" {
			b.WriteString("<v " + cue.Role + ">")
		}
		b.WriteString(cue.Text)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func vttTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	m := millis % 3600000 / 60000
	s := millis % 60000 / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
