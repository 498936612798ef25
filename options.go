package mkvsubtract

import "github.com/ristryder/mkvsubtract/containers/matroska"

// Logger is the log sink Extract reports progress to when Options.Verbose
// is set. It is satisfied directly by *slog.Logger.
type Logger = matroska.Logger

// HTTPDoer is the HTTP capability Extract needs to issue Range requests.
// http.DefaultClient satisfies it; tests substitute a fake backed by an
// in-memory buffer.
type HTTPDoer = matroska.HTTPDoer

// Options configures one Extract call.
type Options struct {
	// AllowFullDownload permits falling back to an in-memory full download
	// when the source does not honor Range requests.
	AllowFullDownload bool

	// Languages whitelists tracks by language tag, case-insensitively and
	// (when both sides parse as BCP-47) by base language. Empty means all
	// tracks pass.
	Languages []string

	// HTTPDoer overrides the HTTP client used for Range requests. Nil means
	// http.DefaultClient.
	HTTPDoer HTTPDoer

	// Headers are merged onto every outgoing request; the Range header is
	// always computed internally and cannot be overridden this way.
	Headers map[string]string

	// Verbose enables progress logging to Logger.
	Verbose bool

	// Concurrency is the worker-pool size for targeted block-fetch batches.
	// Values below 1 are treated as 1 (sequential).
	Concurrency int

	// Logger receives progress messages when Verbose is set. Nil disables
	// logging regardless of Verbose.
	Logger Logger
}
