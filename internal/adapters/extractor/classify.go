package extractor

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
)

// Format is the detected document type.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatHTML:
		return "html"
	default:
		return "unknown"
	}
}

const sniffLen = 1024

var pdfMagic = []byte("%PDF-")

// Classify decides between PDF and HTML from the body first and the declared content type second.
// Servers often label PDFs as application/octet-stream, so the magic bytes win over the header.
func Classify(contentType string, body []byte) Format {
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.Contains(head, pdfMagic) {
		return FormatPDF
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "application/pdf", "application/x-pdf":
		// Declared PDF without magic bytes; let the PDF path reject it.
		return FormatPDF
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	}

	if looksLikeHTML(head) {
		return FormatHTML
	}
	return FormatUnknown
}

func looksLikeHTML(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	if strings.HasPrefix(http.DetectContentType(head), "text/html") {
		return true
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(lower, []byte("<!doctype html")) ||
		bytes.Contains(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<body"))
}
