package subtitles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ristryder/mkvsubtract/containers/matroska"
)

// assDialogue is one parsed block payload, carrying the ReadOrder used only
// for sort order and dropped from the emitted Dialogue line.
type assDialogue struct {
	readOrder int
	layer     string
	style     string
	name      string
	marginL   string
	marginR   string
	marginV   string
	effect    string
	text      string
	startMs   int64
	endMs     int64
}

// AssembleASS renders blocks as an ASS/SSA file, reusing the same logic for
// both: the codec-private header is reproduced verbatim up to `[Events]`
// (synthesizing it plus the canonical Format line if the header doesn't
// already carry one), followed by Dialogue lines sorted by ReadOrder.
func AssembleASS(header []byte, blocks []matroska.SubtitleBlock) []byte {
	headerText := string(header)
	lineEnding := "\n"
	if strings.Contains(headerText, "\r\n") {
		lineEnding = "\r\n"
	}

	dialogues := make([]assDialogue, 0, len(blocks))

	for _, block := range blocks {
		dialogue, ok := parseAssBlockPayload(string(block.Payload))
		if !ok {
			continue
		}

		dialogue.startMs = block.TimestampMs
		dialogue.endMs = endTimestampMs(block)
		dialogues = append(dialogues, dialogue)
	}

	sort.SliceStable(dialogues, func(i, j int) bool { return dialogues[i].readOrder < dialogues[j].readOrder })

	var out strings.Builder

	out.WriteString(strings.TrimRight(headerText, "\r\n"))

	if strings.Contains(headerText, "[Events]") {
		out.WriteString(lineEnding)
	} else {
		out.WriteString(lineEnding)
		out.WriteString(lineEnding)
		out.WriteString("[Events]")
		out.WriteString(lineEnding)
		out.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text")
		out.WriteString(lineEnding)
	}

	for _, dialogue := range dialogues {
		fmt.Fprintf(&out, "Dialogue: %s,%s,%s,%s,%s,%s,%s,%s,%s,%s%s",
			dialogue.layer, formatAssTimestamp(dialogue.startMs), formatAssTimestamp(dialogue.endMs),
			dialogue.style, dialogue.name, dialogue.marginL, dialogue.marginR, dialogue.marginV,
			dialogue.effect, dialogue.text, lineEnding)
	}

	out.WriteString(lineEnding)

	return []byte(out.String())
}

// parseAssBlockPayload splits a subtitle block payload on its first eight
// commas into ReadOrder, Layer, Style, Name, MarginL, MarginR, MarginV,
// Effect, Text; anything past the eighth comma belongs to Text verbatim.
func parseAssBlockPayload(payload string) (assDialogue, bool) {
	fields := strings.SplitN(payload, ",", 9)
	if len(fields) != 9 {
		return assDialogue{}, false
	}

	readOrder, err := strconv.Atoi(fields[0])
	if err != nil {
		return assDialogue{}, false
	}

	return assDialogue{
		readOrder: readOrder,
		layer:     fields[1],
		style:     fields[2],
		name:      fields[3],
		marginL:   fields[4],
		marginR:   fields[5],
		marginV:   fields[6],
		effect:    fields[7],
		text:      fields[8],
	}, true
}

// formatAssTimestamp renders centiseconds as H:MM:SS.cc with hours not
// zero-padded, the ASS convention (distinct from SRT's HH:MM:SS,mmm).
func formatAssTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	totalCentiseconds := ms / 10
	centiseconds := totalCentiseconds % 100
	totalSeconds := totalCentiseconds / 100
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, centiseconds)
}
