package matroska

import "testing"

func TestParseElementHeaderKnownSize(t *testing.T) {
	// EBML header element with a zero-length body.
	buf := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x80}

	header, err := ParseElementHeader(buf, 0, 0)
	if err != nil {
		t.Fatalf("ParseElementHeader: %v", err)
	}

	if header.ID != ElementEbml {
		t.Errorf("ID = %#x, want %#x", uint32(header.ID), uint32(ElementEbml))
	}
	if header.DataSize != 0 || header.UnknownSize {
		t.Errorf("DataSize/UnknownSize = %d/%v, want 0/false", header.DataSize, header.UnknownSize)
	}
	if header.HeaderOffset != 0 || header.DataOffset != 5 {
		t.Errorf("HeaderOffset/DataOffset = %d/%d, want 0/5", header.HeaderOffset, header.DataOffset)
	}
	if header.EndOffset() != 5 {
		t.Errorf("EndOffset = %d, want 5", header.EndOffset())
	}
}

func TestParseElementHeaderAtNonZeroBase(t *testing.T) {
	buf := []byte{0xA3, 0x82, 0x01, 0x02}

	header, err := ParseElementHeader(buf, 0, 1000)
	if err != nil {
		t.Fatalf("ParseElementHeader: %v", err)
	}

	if header.HeaderOffset != 1000 || header.DataOffset != 1002 {
		t.Errorf("HeaderOffset/DataOffset = %d/%d, want 1000/1002", header.HeaderOffset, header.DataOffset)
	}
	if header.DataSize != 2 {
		t.Errorf("DataSize = %d, want 2", header.DataSize)
	}
}

func TestChildElementsStopsOnMalformedChild(t *testing.T) {
	// One valid 1-byte child (ID 0xAE, size 0), followed by a zero byte that
	// has no VINT marker bit at all.
	buf := []byte{0xAE, 0x80, 0x00}

	var seen []ElementID
	for header := range ChildElements(buf, 0, int64(len(buf))) {
		seen = append(seen, header.ID)
	}

	if len(seen) != 1 || seen[0] != ElementTrackEntry {
		t.Errorf("seen = %v, want [%#x]", seen, uint32(ElementTrackEntry))
	}
}

func TestChildElementsStopsOnUnknownSizeChild(t *testing.T) {
	// A Cluster child (legal unknown size) followed by another element that
	// must never be reached.
	buf := []byte{
		0x1F, 0x43, 0xB6, 0x75, 0xFF, // Cluster, unknown size
		0xAE, 0x80, // TrackEntry, size 0 (must not be yielded)
	}

	var count int
	for range ChildElements(buf, 0, int64(len(buf))) {
		count++
	}

	if count != 0 {
		t.Errorf("got %d children, want 0 (unknown-size child halts iteration before yielding)", count)
	}
}

func TestReadIntSignExtends(t *testing.T) {
	// A 2-byte value with the high bit set must sign-extend to a negative
	// int64, matching the relative-timestamp boundary case.
	got := ReadInt([]byte{0x80, 0x00})
	if got != -32768 {
		t.Errorf("ReadInt(0x8000) = %d, want -32768", got)
	}
}

func TestReadStringTrimsTrailingNUL(t *testing.T) {
	got := ReadString([]byte("eng\x00\x00"))
	if got != "eng" {
		t.Errorf("ReadString = %q, want %q", got, "eng")
	}
}

func TestReadFloatRejectsInvalidLength(t *testing.T) {
	if _, err := ReadFloat([]byte{0x00, 0x00, 0x00}); err == nil {
		t.Error("expected an error for a 3-byte float")
	}
}
