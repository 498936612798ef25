package matroska

import (
	"context"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
)

// Font is an embedded font file extracted from Attachments.
type Font struct {
	Name string
	Data []byte
}

// fontMIMETypes is the closed set of MIME types (compared
// case-insensitively) that mark an attachment as a font outright.
var fontMIMETypes = map[string]bool{
	"font/ttf":                       true,
	"font/otf":                       true,
	"font/woff":                      true,
	"font/woff2":                     true,
	"font/sfnt":                      true,
	"application/font-sfnt":          true,
	"application/font-woff":          true,
	"application/font-woff2":         true,
	"application/x-truetype-font":    true,
	"application/vnd.ms-opentype":    true,
	"application/x-font-ttf":         true,
	"application/x-font-otf":         true,
}

var fontExtensions = map[string]bool{
	".ttf":   true,
	".otf":   true,
	".woff":  true,
	".woff2": true,
}

// ParseAttachments fetches the Attachments element at offset and returns
// every AttachedFile that qualifies as a font, by MIME type or (failing
// that) by file extension.
func ParseAttachments(ctx context.Context, src RangeSource, offset int64) ([]Font, error) {
	header, body, fetchErr := FetchElement(ctx, src, offset)
	if fetchErr != nil {
		return nil, errors.Wrap(fetchErr, "failed to fetch Attachments element")
	}

	if header.ID != ElementAttachments {
		return nil, errors.Wrap(ErrMKVParse, "missing Attachments element")
	}

	var fonts []Font

	for child := range ChildElements(body, header.DataOffset, header.DataSize) {
		if child.ID != ElementAttachedFile {
			continue
		}

		if font, ok := parseAttachedFile(body, header.DataOffset, child); ok {
			fonts = append(fonts, font)
		}
	}

	return fonts, nil
}

// attachedFile is every AttachedFile child this package recognizes, parsed
// in full before the font/non-font decision is made: dropping
// FileDescription or FileUID mid-parse, rather than after, would silently
// narrow what this function is capable of reporting about an attachment.
type attachedFile struct {
	uid         uint64
	description string
	name        string
	mimeType    string
	data        []byte
}

func parseAttachedFile(body []byte, bodyBase int64, file ElementHeader) (Font, bool) {
	var attachment attachedFile

	for child := range ChildElements(body[file.DataOffset-bodyBase:], file.DataOffset, file.DataSize) {
		value := sliceFrom(body, bodyBase, child)

		switch child.ID {
		case ElementFileUID:
			attachment.uid = ReadUint(value)
		case ElementFileDescription:
			attachment.description = ReadString(value)
		case ElementFileName:
			attachment.name = ReadString(value)
		case ElementFileMimeType:
			attachment.mimeType = ReadString(value)
		case ElementFileData:
			attachment.data = value
		}
	}

	if !isFont(attachment.name, attachment.mimeType) {
		return Font{}, false
	}

	return Font{Name: attachment.name, Data: append([]byte(nil), attachment.data...)}, true
}

func isFont(name, mimeType string) bool {
	lowerMIME := strings.ToLower(mimeType)
	if fontMIMETypes[lowerMIME] || strings.HasPrefix(lowerMIME, "application/font-") {
		return true
	}

	return fontExtensions[strings.ToLower(path.Ext(name))]
}
