// Package extractor turns a document URL into plain text.
//
// Documents are fetched with a bounded retry budget, classified as PDF or HTML, and
// converted to text. PDFs use their embedded text layer and fall back to OCR
// (pdftoppm + tesseract) when the layer is too sparse, which is the case for scans.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/observability/metrics"
	"github.com/target/paper-digest/internal/observability/statsd"
)

// Stage names used in errors and metrics.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
)

// Options configure a Service.
type Options struct {
	Fetcher  *Fetcher
	PDF      *PDFExtractor
	HTML     *HTMLExtractor
	Language *LanguageDetector

	// MinTextLength is the minimum number of letters and digits a usable extraction must have.
	MinTextLength int
	// PDFTimeout bounds text extraction and OCR for one document.
	PDFTimeout time.Duration

	Metrics statsd.Sink
	Logger  *slog.Logger
}

// Service implements core.Extractor.
type Service struct {
	fetcher       *Fetcher
	pdf           *PDFExtractor
	html          *HTMLExtractor
	language      *LanguageDetector
	minTextLength int
	pdfTimeout    time.Duration
	metrics       statsd.Sink
	logger        *slog.Logger
}

var _ core.Extractor = (*Service)(nil)

// New constructs a Service. Fetcher is required; other collaborators get defaults.
func New(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("extractor: fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PDF == nil {
		opts.PDF = NewPDFExtractor(PDFOptions{Logger: logger})
	}
	if opts.HTML == nil {
		opts.HTML = NewHTMLExtractor(logger)
	}
	if opts.MinTextLength < 1 {
		opts.MinTextLength = 1
	}
	if opts.PDFTimeout <= 0 {
		opts.PDFTimeout = 5 * time.Minute
	}
	return &Service{
		fetcher:       opts.Fetcher,
		pdf:           opts.PDF,
		html:          opts.HTML,
		language:      opts.Language,
		minTextLength: opts.MinTextLength,
		pdfTimeout:    opts.PDFTimeout,
		metrics:       opts.Metrics,
		logger:        logger.With("component", "extractor"),
	}, nil
}

// Extract fetches url and returns its text. Failures are *model.StageError values
// wrapping model.ErrUnreachableURL, model.ErrUnsupportedFormat or model.ErrExtractionEmpty.
func (s *Service) Extract(ctx context.Context, url string) (*model.Extraction, error) {
	start := time.Now()
	doc, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		kind := model.ErrUnreachableURL
		if errors.Is(err, ErrBodyTooLarge) {
			kind = model.ErrUnsupportedFormat
		}
		stageErr := model.NewStageError(StageFetch, kind, err)
		s.emit(StageFetch, "", fetchAttempts(err), time.Since(start), stageErr)
		s.logger.WarnContext(ctx, "fetch failed", "url", url, "error", err)
		return nil, stageErr
	}
	s.emit(StageFetch, "", doc.Attempts, time.Since(start), nil)

	start = time.Now()
	ext, err := s.extractDocument(ctx, doc)
	if err != nil {
		s.emit(StageExtract, "", 1, time.Since(start), err)
		s.logger.WarnContext(ctx, "extraction failed", "url", url, "error", err)
		return nil, err
	}
	s.emit(StageExtract, string(ext.Method), 1, time.Since(start), nil)

	s.logger.InfoContext(ctx, "document extracted",
		"url", url,
		"method", ext.Method,
		"pages", ext.Pages,
		"chars", len(ext.Text),
		"language", ext.Language,
	)
	return ext, nil
}

func (s *Service) extractDocument(ctx context.Context, doc *Document) (*model.Extraction, error) {
	ext := &model.Extraction{Source: doc.FinalURL}

	switch format := Classify(doc.ContentType, doc.Body); format {
	case FormatPDF:
		pdfCtx, cancel := context.WithTimeout(ctx, s.pdfTimeout)
		defer cancel()
		res, err := s.pdf.Extract(pdfCtx, doc.Body)
		if err != nil {
			if errors.Is(err, ErrNotPDF) {
				return nil, model.NewStageError(StageExtract, model.ErrUnsupportedFormat, err)
			}
			return nil, model.NewStageError(StageExtract, model.ErrExtractionEmpty, err)
		}
		for _, w := range res.Warnings {
			s.logger.DebugContext(ctx, "pdf extraction warning", "url", doc.FinalURL, "warning", w)
		}
		ext.Text = cleanText(res.Text)
		ext.Method = res.Method
		ext.Pages = res.Pages

	case FormatHTML:
		res, err := s.html.Extract(ctx, doc.Body, doc.ContentType, doc.FinalURL)
		if err != nil {
			return nil, model.NewStageError(StageExtract, model.ErrExtractionEmpty, err)
		}
		ext.Text = cleanText(res.Text)
		ext.Method = model.ExtractionHTML
		ext.Pages = 1

	default:
		return nil, model.NewStageError(StageExtract, model.ErrUnsupportedFormat,
			errors.New("content type "+strings.TrimSpace(doc.ContentType)+" is neither pdf nor html"))
	}

	if n := visibleChars(ext.Text); n < s.minTextLength {
		return nil, model.NewStageError(StageExtract, model.ErrExtractionEmpty,
			errors.New("extracted text below minimum usable length"))
	}
	ext.Language = s.language.Detect(ext.Text)
	return ext, nil
}

func (s *Service) emit(stage, method string, attempts int, d time.Duration, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitStage(s.metrics, metrics.StageMetric{
		Stage:    stage,
		Result:   result,
		Method:   method,
		Attempts: attempts,
		Duration: d,
		Err:      err,
	})
}

// cleanText drops control characters other than newlines and form feeds and collapses
// runs of blank lines.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\f' || r == '\t':
			return r
		case r == '\r':
			return -1
		case r < 0x20 || r == 0x7f || r == '\uFFFD':
			return -1
		default:
			return r
		}
	}, s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
