package subtitles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ristryder/mkvsubtract/containers/matroska"
)

// AssembleVTT renders blocks as a WebVTT file. Each block's BlockAdditions
// (when present) carries, newline-separated, an optional cue identifier, an
// optional cue settings string, and any preceding NOTE-style comments, in
// that order.
func AssembleVTT(header []byte, blocks []matroska.SubtitleBlock) []byte {
	sorted := append([]matroska.SubtitleBlock(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	headerText := "WEBVTT"
	if len(header) > 0 {
		headerText = string(header)
	}

	var out strings.Builder

	out.WriteString(strings.TrimRight(headerText, "\n"))
	out.WriteString("\n\n")

	for _, block := range sorted {
		identifier, settings, comments := parseVTTBlockAdditions(block.BlockAdditions)

		for _, comment := range comments {
			out.WriteString(comment)
			out.WriteString("\n\n")
		}

		if identifier != "" {
			out.WriteString(identifier)
			out.WriteString("\n")
		}

		out.WriteString(formatVTTTimestamp(block.TimestampMs))
		out.WriteString(" --> ")
		out.WriteString(formatVTTTimestamp(endTimestampMs(block)))

		if settings != "" {
			out.WriteString(" ")
			out.WriteString(settings)
		}

		out.WriteString("\n")
		out.Write(block.Payload)
		out.WriteString("\n\n")
	}

	return []byte(out.String())
}

func parseVTTBlockAdditions(additions []byte) (identifier, settings string, comments []string) {
	if len(additions) == 0 {
		return "", "", nil
	}

	lines := strings.Split(string(additions), "\n")

	if len(lines) > 0 {
		identifier = lines[0]
	}
	if len(lines) > 1 {
		settings = lines[1]
	}
	if len(lines) > 2 {
		comments = lines[2:]
	}

	return identifier, settings, comments
}

func formatVTTTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	milliseconds := ms % 1000
	totalSeconds := ms / 1000
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}
