package mkvsubtract_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ristryder/mkvsubtract/containers/matroska"

	mkvsubtract "github.com/ristryder/mkvsubtract"
)

// elementIDBytes returns the big-endian encoding of id in its canonical
// VINT width (the marker bit is already part of id's value, so this is
// just the minimal non-zero-leading byte-width encoding).
func elementIDBytes(id matroska.ElementID) []byte {
	v := uint32(id)

	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return []byte{byte(v >> 8), byte(v)}
	case v <= 0xFFFFFF:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

func buildElement(t *testing.T, id matroska.ElementID, data []byte) []byte {
	t.Helper()

	sizeBytes, err := matroska.EncodeDataSize(uint64(len(data)), 1)
	if err != nil {
		t.Fatalf("EncodeDataSize(%d): %v", len(data), err)
	}

	out := append([]byte(nil), elementIDBytes(id)...)
	out = append(out, sizeBytes...)
	out = append(out, data...)

	return out
}

func buildUintElement(t *testing.T, id matroska.ElementID, width int, value uint64) []byte {
	t.Helper()

	data := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		data[i] = byte(value)
		value >>= 8
	}

	return buildElement(t, id, data)
}

// buildFixtureMKV assembles the single-block SRT scenario from the testable
// properties list: a Cluster at timestamp 1000 raw units (scale 1ms)
// holding one SimpleBlock for subtitle track 1, payload "Hello".
func buildFixtureMKV(t *testing.T) []byte {
	t.Helper()

	trackEntry := buildElement(t, matroska.ElementTrackEntry, concatBytes(
		buildUintElement(t, matroska.ElementTrackNumber, 1, 1),
		buildUintElement(t, matroska.ElementTrackType, 1, matroska.TrackTypeSubtitle),
		buildElement(t, matroska.ElementCodecID, []byte("S_TEXT/UTF8")),
	))

	tracks := buildElement(t, matroska.ElementTracks, trackEntry)

	simpleBlockData := concatBytes(
		[]byte{0x81},       // track number VINT, track 1
		[]byte{0x00, 0x00}, // relative timestamp, 0
		[]byte{0x00},       // flags
		[]byte("Hello"),
	)

	cluster := buildElement(t, matroska.ElementCluster, concatBytes(
		buildUintElement(t, matroska.ElementTimecode, 2, 1000),
		buildElement(t, matroska.ElementSimpleBlock, simpleBlockData),
	))

	segment := buildElement(t, matroska.ElementSegment, concatBytes(tracks, cluster))
	ebmlHeader := buildElement(t, matroska.ElementEbml, nil)

	return concatBytes(ebmlHeader, segment)
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func TestExtractSingleSRTBlock(t *testing.T) {
	fixture := buildFixtureMKV(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.mkv")

	if err := os.WriteFile(path, fixture, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	results, err := mkvsubtract.Extract(context.Background(), "file://"+path, mkvsubtract.Options{})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d track results, want 1", len(results))
	}

	track := results[0]
	if track.Format != "srt" {
		t.Errorf("Format = %q, want srt", track.Format)
	}

	want := "1\n00:00:01,000 --> 00:00:01,000\nHello\n\n"
	if string(track.Subtitle) != want {
		t.Errorf("Subtitle = %q, want %q", track.Subtitle, want)
	}

	if track.Fonts != nil {
		t.Errorf("Fonts = %v, want nil for srt", track.Fonts)
	}
}

func TestExtractLanguageFilterExcludesAllTracks(t *testing.T) {
	fixture := buildFixtureMKV(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.mkv")

	if err := os.WriteFile(path, fixture, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	results, err := mkvsubtract.Extract(context.Background(), "file://"+path, mkvsubtract.Options{Languages: []string{"jpn"}})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if len(results) != 0 {
		t.Fatalf("got %d track results, want 0 (track has no language set)", len(results))
	}
}
