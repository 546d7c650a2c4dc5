// Package extract turns uploaded files into plain text. Each MIME family has
// its own Extractor and Router dispatches between them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for MIME types no extractor handles.
var ErrUnsupported = errors.New("unsupported content type")

// Input is a file to extract.
type Input struct {
	Name     string
	MimeType string
	Data     []byte
}

// Document is extracted text plus extractor-specific metadata.
type Document struct {
	Text     string
	Metadata map[string]any
}

// Extractor extracts text from one kind of file.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*Document, error)
}

// Family is the coarse content class used for routing.
type Family string

// Families.
const (
	FamilyText    Family = "text"
	FamilyPDF     Family = "pdf"
	FamilyAudio   Family = "audio"
	FamilyVideo   Family = "video"
	FamilyImage   Family = "image"
	FamilyUnknown Family = ""
)

// textLike lists non-text/* types that are still plain text.
var textLike = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"application/javascript": true,
	"application/x-ndjson":   true,
}

// FamilyOf classifies a MIME type. Parameters such as charset are ignored.
func FamilyOf(mimeType string) Family {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == "application/pdf":
		return FamilyPDF
	case strings.HasPrefix(mt, "text/"), textLike[mt]:
		return FamilyText
	case strings.HasPrefix(mt, "audio/"):
		return FamilyAudio
	case strings.HasPrefix(mt, "video/"):
		return FamilyVideo
	case strings.HasPrefix(mt, "image/"):
		return FamilyImage
	}

	return FamilyUnknown
}

// Router dispatches by MIME family. A nil extractor means the family is
// not supported in this deployment.
type Router struct {
	Text  Extractor
	PDF   Extractor
	Audio Extractor
	Video Extractor
	Image Extractor

	closers []io.Closer
}

// Extract implements Extractor.
func (r *Router) Extract(ctx context.Context, in Input) (*Document, error) {
	var ex Extractor

	family := FamilyOf(in.MimeType)

	switch family {
	case FamilyText:
		ex = r.Text
	case FamilyPDF:
		ex = r.PDF
	case FamilyAudio:
		ex = r.Audio
	case FamilyVideo:
		ex = r.Video
	case FamilyImage:
		ex = r.Image
	}

	if ex == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, in.MimeType)
	}

	doc, err := ex.Extract(ctx, in)
	if err != nil {
		return nil, err
	}

	doc.Text = stripNUL(doc.Text)

	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	doc.Metadata["family"] = string(family)

	return doc, nil
}

// stripNUL drops NUL bytes, which Postgres rejects in text columns.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// TextExtractor reads the file as UTF-8, replacing invalid sequences and
// dropping NUL bytes.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(_ context.Context, in Input) (*Document, error) {
	data := in.Data
	data = trimBOM(data)

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}

	return &Document{Text: stripNUL(text), Metadata: map[string]any{"extractor": "text"}}, nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}

	return b
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}

	return s, false
}
