// Package subtitles reconstructs SRT, ASS/SSA and WebVTT text from the
// matroska package's decoded subtitle blocks.
package subtitles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ristryder/mkvsubtract/containers/matroska"
)

// AssembleSRT renders blocks as an SRT file: a 1-based index, a
// "start --> end" timestamp line, the payload text, then a blank line,
// sorted by start timestamp.
func AssembleSRT(blocks []matroska.SubtitleBlock) []byte {
	sorted := append([]matroska.SubtitleBlock(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	var out strings.Builder

	for i, block := range sorted {
		fmt.Fprintf(&out, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTimestamp(block.TimestampMs), formatSRTTimestamp(endTimestampMs(block)), block.Payload)
	}

	return []byte(out.String())
}

func endTimestampMs(block matroska.SubtitleBlock) int64 {
	if block.DurationMs == nil {
		return block.TimestampMs
	}

	return block.TimestampMs + *block.DurationMs
}

func formatSRTTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	milliseconds := ms % 1000
	totalSeconds := ms / 1000
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
