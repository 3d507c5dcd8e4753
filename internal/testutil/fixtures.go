// Package testutil provides database, Redis and document fixtures for paper-digest tests.
package testutil

import (
	"bytes"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/target/paper-digest/internal/domain/model"
)

// TextPDF renders one page per paragraph with an embedded text layer.
func TextPDF(t TestingTB, paragraphs ...string) []byte {
	t.Helper()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 11)
	for _, p := range paragraphs {
		pdf.AddPage()
		pdf.MultiCell(0, 5, p, "", "L", false)
	}
	return outputPDF(t, pdf)
}

// ScannedPDF renders pages that carry only drawn shapes, mimicking a scan with no text layer.
func ScannedPDF(t TestingTB, pages int) []byte {
	t.Helper()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFillColor(40, 40, 40)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		for row := 0; row < 20; row++ {
			pdf.Rect(20, 20+float64(row)*10, 150, 3, "F")
		}
	}
	return outputPDF(t, pdf)
}

func outputPDF(t TestingTB, pdf *fpdf.Fpdf) []byte {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("render pdf fixture: %v", err)
	}
	return buf.Bytes()
}

// LoremParagraph returns n words of filler text, enough to pass density thresholds.
func LoremParagraph(n int) string {
	words := strings.Fields("sleep consolidates memory in students who rest after study sessions and recall more")
	out := make([]string, n)
	for i := range out {
		out[i] = words[i%len(words)]
	}
	return strings.Join(out, " ")
}

// SampleDigest returns a complete digest for tests.
func SampleDigest() model.Digest {
	return model.Digest{
		Title:       "Sleep Helps Memory Stick",
		Summary:     "Researchers found that a night of sleep helps the brain keep what it learned.",
		Methodology: "They tracked 200 students over one semester.",
		Takeaways: []string{
			"Sleep after study improves recall.",
			"Short naps help a little.",
			"All-night cramming backfires.",
		},
	}
}
