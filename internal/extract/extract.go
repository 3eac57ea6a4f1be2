// Package extract converts raw uploaded bytes into plain text. Dispatch is
// by format tag with one handler per supported format. Extraction failures
// are deterministic functions of the input bytes and are never retried.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinContentLength is the minimum extracted text length. Anything shorter is
// treated as a corrupted or empty upload rather than a success.
const MinContentLength = 10

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyContent      = errors.New("document contains no extractable text")
	ErrContentTooShort   = errors.New("extracted text below minimum length")
)

// Format identifies a supported document format.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatMD   Format = "md"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
)

// FormatFromFilename maps a file extension to a Format. Returns
// ErrUnsupportedFormat for anything outside the closed set.
func FormatFromFilename(name string) (Format, error) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, name)
	}
	ext := strings.ToLower(name[idx+1:])
	switch ext {
	case "txt", "csv", "json", "md", "pdf", "docx", "xlsx":
		return Format(ext), nil
	}
	return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
}

// Extract converts raw bytes to plain text according to the format tag.
// The result is validated: empty or whitespace-only text fails with
// ErrEmptyContent, and text shorter than MinContentLength fails with
// ErrContentTooShort.
func Extract(raw []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatTXT, FormatCSV, FormatJSON:
		text, err = extractPlain(raw)
	case FormatMD:
		text, err = extractMarkdown(raw)
	case FormatPDF:
		text, err = extractPDF(raw)
	case FormatDOCX:
		text, err = extractDOCX(raw)
	case FormatXLSX:
		text, err = extractXLSX(raw)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}
	return Validate(text)
}

// Validate applies the common result checks and returns the trimmed text.
// It is exported so that in-memory ingestion (scraped pages, Q&A pairs) can
// apply the same guards before chunking.
func Validate(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) < MinContentLength {
		return "", fmt.Errorf("%w: got %d characters", ErrContentTooShort, utf8.RuneCountInString(trimmed))
	}
	return trimmed, nil
}

func extractPlain(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		// Best effort: strip invalid sequences rather than refusing the file.
		raw = []byte(strings.ToValidUTF8(string(raw), ""))
	}
	return string(raw), nil
}
