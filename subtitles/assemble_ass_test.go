package subtitles

import (
	"strings"
	"testing"

	"github.com/ristryder/mkvsubtract/containers/matroska"
)

func TestAssembleASSSortsByReadOrderNotTimestamp(t *testing.T) {
	blocks := []matroska.SubtitleBlock{
		// Later on screen, but ReadOrder 0: must come first in output.
		{TimestampMs: 5000, Payload: []byte("0,0,Default,,0,0,0,,Early")},
		// Earlier on screen, but ReadOrder 1: must come second.
		{TimestampMs: 1000, Payload: []byte("1,0,Default,,0,0,0,,Late")},
	}

	got := string(AssembleASS(nil, blocks))

	earlyIdx := strings.Index(got, "Early")
	lateIdx := strings.Index(got, "Late")

	if earlyIdx == -1 || lateIdx == -1 {
		t.Fatalf("both dialogues must appear in output, got %q", got)
	}
	if earlyIdx > lateIdx {
		t.Errorf("Early (ReadOrder 0) must precede Late (ReadOrder 1), got %q", got)
	}
}

func TestAssembleASSPreservesEmbeddedCommasInText(t *testing.T) {
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 1000, Payload: []byte("0,0,Default,,0,0,0,,Hello, world, foo")},
	}

	got := string(AssembleASS(nil, blocks))

	if !strings.Contains(got, "Dialogue: 0,0:00:01.00,0:00:01.00,Default,,0,0,0,,Hello, world, foo") {
		t.Errorf("AssembleASS did not preserve embedded commas verbatim, got %q", got)
	}
}

func TestAssembleASSSynthesizesEventsSectionWhenAbsent(t *testing.T) {
	header := []byte("[Script Info]\nTitle: test")
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 0, Payload: []byte("0,0,Default,,0,0,0,,Hi")},
	}

	got := string(AssembleASS(header, blocks))

	if !strings.Contains(got, "[Events]") {
		t.Errorf("expected a synthesized [Events] section, got %q", got)
	}
	if !strings.Contains(got, "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text") {
		t.Errorf("expected a synthesized Format line, got %q", got)
	}
}

func TestAssembleASSReusesExistingEventsSection(t *testing.T) {
	header := []byte("[Script Info]\n\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text")
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 0, Payload: []byte("0,0,Default,,0,0,0,,Hi")},
	}

	got := string(AssembleASS(header, blocks))

	if strings.Count(got, "[Events]") != 1 {
		t.Errorf("expected exactly one [Events] section, got %q", got)
	}
}

func TestAssembleASSDetectsCRLFHeader(t *testing.T) {
	header := []byte("[Script Info]\r\nTitle: test\r\n")
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 0, Payload: []byte("0,0,Default,,0,0,0,,Hi")},
	}

	got := string(AssembleASS(header, blocks))

	// The synthesized [Events] line only uses CRLF if detection worked; the
	// header's own CRLF would be present either way.
	if !strings.Contains(got, "[Events]\r\n") {
		t.Errorf("expected synthesized lines to use the header's CRLF ending, got %q", got)
	}
}

func TestParseAssBlockPayloadRejectsMalformedReadOrder(t *testing.T) {
	if _, ok := parseAssBlockPayload("not-a-number,0,Default,,0,0,0,,text"); ok {
		t.Error("expected parseAssBlockPayload to reject a non-numeric ReadOrder")
	}
}

func TestParseAssBlockPayloadRejectsTooFewFields(t *testing.T) {
	if _, ok := parseAssBlockPayload("0,0,Default"); ok {
		t.Error("expected parseAssBlockPayload to reject a payload with too few fields")
	}
}

func TestFormatAssTimestampDoesNotZeroPadHours(t *testing.T) {
	got := formatAssTimestamp(3661010)
	want := "1:01:01.01"

	if got != want {
		t.Errorf("formatAssTimestamp = %q, want %q", got, want)
	}
}
