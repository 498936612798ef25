package subtitles

import (
	"testing"

	"github.com/ristryder/mkvsubtract/containers/matroska"
)

func TestAssembleSRTSingleBlock(t *testing.T) {
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 1000, Payload: []byte("Hello")},
	}

	got := AssembleSRT(blocks)
	want := "1\n00:00:01,000 --> 00:00:01,000\nHello\n\n"

	if string(got) != want {
		t.Errorf("AssembleSRT = %q, want %q", got, want)
	}
}

func TestAssembleSRTUsesDurationForEndTimestamp(t *testing.T) {
	duration := int64(2500)
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 1000, DurationMs: &duration, Payload: []byte("Hi")},
	}

	got := AssembleSRT(blocks)
	want := "1\n00:00:01,000 --> 00:00:03,500\nHi\n\n"

	if string(got) != want {
		t.Errorf("AssembleSRT = %q, want %q", got, want)
	}
}

func TestAssembleSRTSortsByTimestamp(t *testing.T) {
	blocks := []matroska.SubtitleBlock{
		{TimestampMs: 5000, Payload: []byte("Second")},
		{TimestampMs: 1000, Payload: []byte("First")},
	}

	got := AssembleSRT(blocks)
	want := "1\n00:00:01,000 --> 00:00:01,000\nFirst\n\n" +
		"2\n00:00:05,000 --> 00:00:05,000\nSecond\n\n"

	if string(got) != want {
		t.Errorf("AssembleSRT = %q, want %q", got, want)
	}
}

func TestFormatSRTTimestampRollsOverHours(t *testing.T) {
	got := formatSRTTimestamp(3661001)
	want := "01:01:01,001"

	if got != want {
		t.Errorf("formatSRTTimestamp = %q, want %q", got, want)
	}
}

func TestFormatSRTTimestampClampsNegative(t *testing.T) {
	if got := formatSRTTimestamp(-50); got != "00:00:00,000" {
		t.Errorf("formatSRTTimestamp(-50) = %q, want %q", got, "00:00:00,000")
	}
}
