package extractor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// boilerplate is removed before text conversion.
const boilerplate = "script,style,noscript,template,iframe,svg,canvas,form,button,nav,header,footer,aside," +
	"[role=navigation],[role=banner],[role=contentinfo],[aria-hidden=true]"

// HTMLResult is the readable text of a page.
type HTMLResult struct {
	Title string
	Text  string
}

// HTMLExtractor pulls the main readable content out of an HTML page.
type HTMLExtractor struct {
	logger *slog.Logger
}

// NewHTMLExtractor constructs an HTMLExtractor.
func NewHTMLExtractor(logger *slog.Logger) *HTMLExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLExtractor{logger: logger.With("component", "html_extractor")}
}

// Extract decodes body using the declared or sniffed charset, isolates the article with
// readability, strips boilerplate elements and renders the rest as markdown-flavoured text.
// When readability finds nothing the whole body is used.
func (h *HTMLExtractor) Extract(ctx context.Context, body []byte, contentType, pageURL string) (*HTMLResult, error) {
	decoded, err := decodeHTML(body, contentType)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	res := &HTMLResult{}
	content := ""

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(decoded), base)
	if err != nil {
		h.logger.DebugContext(ctx, "readability failed, using full document", "url", pageURL, "error", err)
	} else {
		res.Title = normalizeText(article.Title)
		content = article.Content
	}
	if strings.TrimSpace(content) == "" {
		content = decoded
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if res.Title == "" {
		res.Title = normalizeText(doc.Find("title").First().Text())
	}
	doc.Find(boilerplate).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	cleaned, err := goquery.OuterHtml(root)
	if err != nil {
		return nil, fmt.Errorf("render cleaned html: %w", err)
	}

	converter := md.NewConverter(base.Scheme+"://"+base.Host, true, nil)
	text, err := converter.ConvertString(cleaned)
	if err != nil {
		h.logger.DebugContext(ctx, "markdown conversion failed, using plain text", "url", pageURL, "error", err)
		text = blockText(root)
	}
	res.Text = strings.TrimSpace(text)
	return res, nil
}

func decodeHTML(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown declared charset; assume UTF-8.
		return string(body), nil //nolint:nilerr // fallback is intentional
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode html: %w", err)
	}
	return string(decoded), nil
}

// blockText joins the text of block elements, one per line.
func blockText(sel *goquery.Selection) string {
	var lines []string
	sel.Find("h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td").Each(func(_ int, s *goquery.Selection) {
		if t := normalizeText(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return normalizeText(sel.Text())
	}
	return strings.Join(lines, "\n\n")
}

// normalizeText trims every line and joins the non-empty ones with single spaces.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return b.String()
}
