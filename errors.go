package mkvsubtract

import "github.com/ristryder/mkvsubtract/containers/matroska"

// ErrRangeNotSupported is returned when the source server does not honor
// HTTP Range requests and Options.AllowFullDownload was not set.
var ErrRangeNotSupported = matroska.ErrRangeNotSupported

// ErrMKVParse is returned for structural Matroska violations severe enough
// that extraction cannot proceed: a missing EBML header, Segment, or
// Tracks element, or an element reached through the SeekHead or Cue index
// that is not the expected element or has an unknown size.
var ErrMKVParse = matroska.ErrMKVParse
