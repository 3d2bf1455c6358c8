package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Accepted media types.
const (
	MediaPDF  = "application/pdf"
	MediaCSV  = "text/csv"
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var supported = map[string]bool{
	MediaPDF:  true,
	MediaCSV:  true,
	MediaJPEG: true,
	MediaPNG:  true,
	MediaXLSX: true,
}

// aliases maps common non-canonical spellings to the accepted type.
var aliases = map[string]string{
	"application/csv":             MediaCSV,
	"text/comma-separated-values": MediaCSV,
	"image/jpg":                   MediaJPEG,
	"image/pjpeg":                 MediaJPEG,
	"application/x-pdf":           MediaPDF,
}

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrEmptyDocument        = errors.New("empty document")
)

// UnsupportedTypeError rejects a document before any service call is made.
type UnsupportedTypeError struct {
	MediaType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnsupportedMediaType, e.MediaType)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedMediaType }

// Document is an accepted upload ready for extraction.
type Document struct {
	Name      string
	MediaType string
	Data      []byte
	// Text is the document's text layer, empty for images and scanned PDFs.
	Text   string
	Digest string
}

// IsSupported reports whether mediaType is accepted as-is.
func IsSupported(mediaType string) bool {
	return supported[mediaType]
}

// SupportedTypes lists the accepted media types.
func SupportedTypes() []string {
	return []string{MediaPDF, MediaCSV, MediaJPEG, MediaPNG, MediaXLSX}
}

// ResolveMediaType normalises the declared type and sniffs the payload when the
// declaration is missing or generic. The result is always an accepted type.
func ResolveMediaType(declared string, data []byte) (string, error) {
	mt := normalize(declared)
	if mt == "" || mt == "application/octet-stream" {
		mt = normalize(mimetype.Detect(data).String())
	}
	if !IsSupported(mt) {
		return "", &UnsupportedTypeError{MediaType: mt}
	}
	return mt, nil
}

func normalize(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(mediaType)
	if canonical, ok := aliases[mediaType]; ok {
		return canonical
	}
	return mediaType
}

// Prepare validates an upload and extracts whatever text layer it carries.
func Prepare(name, declaredType string, data []byte) (Document, error) {
	mt, err := ResolveMediaType(declaredType, data)
	if err != nil {
		return Document{}, err
	}
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%s: %w", name, ErrEmptyDocument)
	}

	doc := Document{
		Name:      name,
		MediaType: mt,
		Data:      data,
		Digest:    Digest(data),
	}

	switch mt {
	case MediaPDF:
		// Best effort: a scanned or damaged PDF still goes to document-capable providers.
		doc.Text, _ = pdfText(data)
	case MediaCSV:
		doc.Text = string(data)
	case MediaXLSX:
		text, err := xlsxToCSV(data)
		if err != nil {
			return Document{}, fmt.Errorf("%s: %w", name, err)
		}
		doc.Text = text
	}
	return doc, nil
}

// Digest is the hex SHA-256 of a payload, used as the extraction cache key.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
