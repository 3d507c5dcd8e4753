package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/target/paper-digest/internal/domain/model"
)

// ErrNotPDF is returned when a body labelled as PDF cannot be read as one.
var ErrNotPDF = errors.New("not a readable pdf")

// PDFOptions configure PDF text extraction and the OCR fallback.
type PDFOptions struct {
	Runner Runner

	PDFToText string
	PDFToPPM  string
	Tesseract string

	// OCRLanguage is passed to tesseract -l.
	OCRLanguage string
	DPI         int
	MaxPages    int

	// MinCharsPerPage is the embedded text density below which OCR is attempted.
	MinCharsPerPage int

	Logger *slog.Logger
}

// PDFResult is the text recovered from a PDF.
type PDFResult struct {
	Text   string
	Pages  int
	Method model.ExtractionMethod
	// Warnings collects non-fatal problems such as a page tesseract could not read.
	Warnings []string
}

// PDFExtractor reads the embedded text layer of a PDF and falls back to OCR for scans.
type PDFExtractor struct {
	opts   PDFOptions
	logger *slog.Logger
}

// NewPDFExtractor constructs a PDFExtractor with defaults for unset options.
func NewPDFExtractor(opts PDFOptions) *PDFExtractor {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{Logger: opts.Logger}
	}
	if opts.PDFToText == "" {
		opts.PDFToText = "pdftotext"
	}
	if opts.PDFToPPM == "" {
		opts.PDFToPPM = "pdftoppm"
	}
	if opts.Tesseract == "" {
		opts.Tesseract = "tesseract"
	}
	if opts.OCRLanguage == "" {
		opts.OCRLanguage = "eng"
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{opts: opts, logger: logger.With("component", "pdf_extractor")}
}

// Extract writes body to a temporary file, reads its text layer and runs OCR when the
// layer is too sparse. The richer of the two texts is returned.
func (p *PDFExtractor) Extract(ctx context.Context, body []byte) (*PDFResult, error) {
	pages, inspectErr := inspectPDF(body)
	if inspectErr != nil {
		p.logger.WarnContext(ctx, "pdf inspection failed, relying on pdftotext", "error", inspectErr)
	}

	dir, err := os.MkdirTemp("", "paper-digest-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("remove temp dir", "dir", dir, "error", rmErr)
		}
	}()

	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	res := &PDFResult{Method: model.ExtractionDirect, Pages: pages}

	text, textPages, textErr := p.pdfToText(ctx, path)
	if textErr != nil {
		if inspectErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotPDF, errors.Join(inspectErr, textErr))
		}
		res.Warnings = append(res.Warnings, "pdftotext: "+textErr.Error())
	}
	if res.Pages == 0 {
		res.Pages = max(textPages, 1)
	}
	res.Text = text

	density := visibleChars(text) / res.Pages
	if density >= p.opts.MinCharsPerPage && textErr == nil {
		return res, nil
	}

	p.logger.InfoContext(ctx, "sparse text layer, running ocr",
		"pages", res.Pages, "chars_per_page", density, "threshold", p.opts.MinCharsPerPage)

	ocrText, ocrPages, warns, ocrErr := p.pdfToOCR(ctx, dir, path)
	res.Warnings = append(res.Warnings, warns...)
	if ocrErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Warnings = append(res.Warnings, "ocr: "+ocrErr.Error())
		p.logger.WarnContext(ctx, "ocr failed, keeping text layer", "error", ocrErr)
		return res, nil
	}

	if visibleChars(ocrText) > visibleChars(text) {
		res.Text = ocrText
		res.Method = model.ExtractionOCR
		if res.Pages < ocrPages {
			res.Pages = ocrPages
		}
	}
	return res, nil
}

// inspectPDF validates the structure with pdfcpu and returns the page count.
func inspectPDF(body []byte) (int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(body), conf)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	return ctx.PageCount, nil
}

func (p *PDFExtractor) pdfToText(ctx context.Context, path string) (string, int, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.opts.Runner.Run(ctx, p.opts.PDFToText, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	text := string(out)
	// pdftotext ends every page with a form feed.
	pages := strings.Count(text, "\f")
	if pages == 0 && strings.TrimSpace(text) != "" {
		pages = 1
	}
	return text, pages, nil
}

func (p *PDFExtractor) pdfToOCR(ctx context.Context, dir, path string) (string, int, []string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r <dpi> -png -l <max> <in.pdf> <prefix>
	_, errb, err := p.opts.Runner.Run(ctx, p.opts.PDFToPPM,
		"-r", strconv.Itoa(p.opts.DPI), "-png", "-l", strconv.Itoa(p.opts.MaxPages), path, prefix)
	if err != nil {
		return "", 0, nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	images, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(images)
	if len(images) > p.opts.MaxPages {
		images = images[:p.opts.MaxPages]
	}
	if len(images) == 0 {
		return "", 0, nil, errors.New("pdftoppm produced no images")
	}

	var b strings.Builder
	var warns []string
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return "", 0, warns, err
		}
		out, errb, err := p.opts.Runner.Run(ctx, p.opts.Tesseract, img, "stdout", "-l", p.opts.OCRLanguage)
		if err != nil {
			warns = append(warns, fmt.Sprintf("tesseract %s: %v: %s", filepath.Base(img), err, strings.TrimSpace(string(errb))))
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.Write(out)
	}
	if b.Len() == 0 {
		return "", len(images), warns, errors.New("tesseract recognized no text")
	}
	return b.String(), len(images), warns, nil
}

// visibleChars counts letters and digits.
func visibleChars(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
