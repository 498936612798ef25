package mkvsubtract

// TrackMetadata is the minimal per-track metadata surfaced alongside a
// reconstructed subtitle file.
type TrackMetadata struct {
	TrackNumber uint64
	Language    string // empty when absent or "und"
	TrackName   string // empty when absent
}

// Font is an embedded font file. The same Font values are shared (not
// cloned) across every ASS/SSA TrackResult produced by one Extract call;
// callers must not mutate Data.
type Font struct {
	Name string
	Data []byte
}

// TrackResult is one subtitle track reconstructed from the source file.
type TrackResult struct {
	// Format is "srt", "ass", "ssa", or "vtt".
	Format string

	Metadata TrackMetadata

	// Subtitle is the fully reconstructed, UTF-8 encoded subtitle file.
	Subtitle []byte

	// Fonts is non-nil only when Format is "ass" or "ssa".
	Fonts []Font
}
