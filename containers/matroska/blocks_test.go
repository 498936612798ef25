package matroska

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func TestParseBlockHeaderSignExtendsNegativeTimestamp(t *testing.T) {
	// Track 1 (single-byte VINT 0x81), relative timestamp 0x8000 (-32768),
	// flags 0.
	data := []byte{0x81, 0x80, 0x00, 0x00, 'H', 'i'}

	header, err := parseBlockHeader(data)
	if err != nil {
		t.Fatalf("parseBlockHeader: %v", err)
	}

	if header.relativeTimeMs != -32768 {
		t.Errorf("relativeTimeMs = %d, want -32768", header.relativeTimeMs)
	}
	if header.trackNumber != 1 {
		t.Errorf("trackNumber = %d, want 1", header.trackNumber)
	}
	if header.isLaced() {
		t.Error("flags byte 0x00 must not be laced")
	}
	if string(header.payload(data)) != "Hi" {
		t.Errorf("payload = %q, want %q", header.payload(data), "Hi")
	}
}

func TestParseBlockHeaderDetectsLacing(t *testing.T) {
	// Flags byte with bit 1 set (Xiph lacing).
	data := []byte{0x81, 0x00, 0x00, 0x02}

	header, err := parseBlockHeader(data)
	if err != nil {
		t.Fatalf("parseBlockHeader: %v", err)
	}

	if !header.isLaced() {
		t.Error("flags byte 0x02 must report laced")
	}
}

func TestParseBlockHeaderRejectsShortInput(t *testing.T) {
	if _, err := parseBlockHeader([]byte{0x81, 0x00}); err == nil {
		t.Error("expected an error for a block too short to hold a full header")
	}
}

func TestDecodePayloadTruncatesAtNUL(t *testing.T) {
	track := SubtitleTrackInfo{}

	got, err := DecodePayload([]byte("Hello\x00garbage"), track)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if string(got) != "Hello" {
		t.Errorf("DecodePayload = %q, want %q", got, "Hello")
	}
}

func TestDecodePayloadNormalizesCRLF(t *testing.T) {
	track := SubtitleTrackInfo{}

	got, err := DecodePayload([]byte("line one\r\nline two"), track)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if string(got) != "line one\nline two" {
		t.Errorf("DecodePayload = %q, want %q", got, "line one\nline two")
	}
}

func TestDecodePayloadDecompressesZlib(t *testing.T) {
	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	if _, err := writer.Write([]byte("compressed subtitle text")); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	track := SubtitleTrackInfo{ContentEncodingType: 0, ContentEncodingScope: 1}

	got, err := DecodePayload(buf.Bytes(), track)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if string(got) != "compressed subtitle text" {
		t.Errorf("DecodePayload = %q, want %q", got, "compressed subtitle text")
	}
}

func TestDecodePayloadRejectsMalformedZlib(t *testing.T) {
	track := SubtitleTrackInfo{ContentEncodingType: 0, ContentEncodingScope: 1}

	if _, err := DecodePayload([]byte("not zlib data"), track); err == nil {
		t.Error("expected an error decompressing malformed zlib data")
	}
}
