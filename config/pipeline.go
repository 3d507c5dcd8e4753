package config

import (
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// FetchConfig controls how documents are downloaded.
type FetchConfig struct {
	Timeout     time.Duration `env:"TIMEOUT"      envDefault:"30s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"BASE_DELAY"   envDefault:"500ms"`
	MaxBytes    int64         `env:"MAX_BYTES"    envDefault:"52428800"` // 50 MiB
	UserAgent   string        `env:"USER_AGENT"`
}

// Sanitize applies guardrails to fetch configuration values.
func (f *FetchConfig) Sanitize() {
	if f.Timeout <= 0 {
		f.Timeout = 30 * time.Second
	}
	if f.MaxAttempts < 1 {
		f.MaxAttempts = 1
	}
	if f.BaseDelay < 0 {
		f.BaseDelay = 0
	}
	if f.MaxBytes <= 0 {
		f.MaxBytes = 50 << 20
	}
	if f.UserAgent = strings.TrimSpace(f.UserAgent); f.UserAgent == "" {
		f.UserAgent = defaultUserAgent
	}
}

// OCRConfig controls PDF text extraction and the OCR fallback.
type OCRConfig struct {
	PDFToTextPath string `env:"PDFTOTEXT_PATH" envDefault:"pdftotext"`
	PDFToPPMPath  string `env:"PDFTOPPM_PATH"  envDefault:"pdftoppm"`
	TesseractPath string `env:"TESSERACT_PATH" envDefault:"tesseract"`
	Language      string `env:"LANGUAGE"       envDefault:"eng"`
	DPI           int    `env:"DPI"            envDefault:"300"`
	MaxPages      int    `env:"MAX_PAGES"      envDefault:"30"`

	// MinCharsPerPage is the embedded text density below which a PDF is treated as scanned.
	MinCharsPerPage int `env:"MIN_CHARS_PER_PAGE" envDefault:"100"`

	// MinTextLength is the minimum usable text length after all fallbacks.
	MinTextLength int `env:"MIN_TEXT_LENGTH" envDefault:"200"`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"5m"`
}

// Sanitize applies guardrails to OCR configuration values.
func (o *OCRConfig) Sanitize() {
	if o.DPI < 72 {
		o.DPI = 72
	}
	if o.DPI > 600 {
		o.DPI = 600
	}
	if o.MaxPages < 1 {
		o.MaxPages = 1
	}
	if o.MinCharsPerPage < 0 {
		o.MinCharsPerPage = 0
	}
	if o.MinTextLength < 1 {
		o.MinTextLength = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.Language = strings.TrimSpace(o.Language); o.Language == "" {
		o.Language = "eng"
	}
}

// AIProvider names a generative model backend.
type AIProvider string

const (
	AIProviderGemini    AIProvider = "gemini"
	AIProviderAnthropic AIProvider = "anthropic"
)

// AIConfig controls the generative model client.
type AIConfig struct {
	Provider        AIProvider    `env:"PROVIDER"          envDefault:"gemini"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	Model           string        `env:"MODEL"`
	Temperature     float32       `env:"TEMPERATURE"       envDefault:"0.2"`
	MaxOutputTokens int           `env:"MAX_OUTPUT_TOKENS" envDefault:"4096"`
	Timeout         time.Duration `env:"TIMEOUT"           envDefault:"2m"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS"      envDefault:"3"`
	BaseDelay       time.Duration `env:"BASE_DELAY"        envDefault:"2s"`

	// RequestsPerMinute throttles model calls across all workers in the process. Zero disables throttling.
	RequestsPerMinute int `env:"REQUESTS_PER_MINUTE" envDefault:"15"`
}

// Sanitize applies guardrails to AI configuration values.
func (a *AIConfig) Sanitize() {
	a.Provider = AIProvider(strings.ToLower(strings.TrimSpace(string(a.Provider))))
	if a.Provider != AIProviderAnthropic {
		a.Provider = AIProviderGemini
	}
	if strings.TrimSpace(a.Model) == "" {
		switch a.Provider {
		case AIProviderAnthropic:
			a.Model = "claude-3-5-haiku-latest"
		default:
			a.Model = "gemini-1.5-flash-latest"
		}
	}
	if a.Temperature < 0 {
		a.Temperature = 0
	}
	if a.MaxOutputTokens < 256 {
		a.MaxOutputTokens = 256
	}
	if a.Timeout <= 0 {
		a.Timeout = 2 * time.Minute
	}
	if a.MaxAttempts < 1 {
		a.MaxAttempts = 1
	}
	if a.BaseDelay < 0 {
		a.BaseDelay = 0
	}
	if a.RequestsPerMinute < 0 {
		a.RequestsPerMinute = 0
	}
}

// APIKey returns the key for the configured provider.
func (a *AIConfig) APIKey() string {
	if a.Provider == AIProviderAnthropic {
		return a.AnthropicAPIKey
	}
	return a.GeminiAPIKey
}

// SummaryConfig controls prompt construction and reply parsing.
type SummaryConfig struct {
	// MaxChars truncates extracted text before it is sent to the model.
	MaxChars int `env:"MAX_CHARS" envDefault:"900000"`

	// ParseRetries is how many times an unparseable reply is retried with a restated prompt.
	ParseRetries int `env:"PARSE_RETRIES" envDefault:"2"`

	// StrayTextRatio is the share of a block that may be scratch-analysis debris
	// before the block is discarded as unparseable.
	StrayTextRatio float64 `env:"STRAY_TEXT_RATIO" envDefault:"0.5"`
}

// Sanitize applies guardrails to summary configuration values.
func (s *SummaryConfig) Sanitize() {
	if s.MaxChars < 1000 {
		s.MaxChars = 1000
	}
	if s.ParseRetries < 0 {
		s.ParseRetries = 0
	}
	if s.ParseRetries > 2 {
		s.ParseRetries = 2
	}
	if s.StrayTextRatio <= 0 || s.StrayTextRatio > 1 {
		s.StrayTextRatio = 0.5
	}
}

// DigestSinkConfig configures the optional outbound webhook fired when a job reaches a terminal state.
type DigestSinkConfig struct {
	URL string `env:"URL"`
	// BodyExpr is an optional JMESPath expression applied to the terminal job
	// document to shape the request body.
	BodyExpr   string        `env:"BODY_EXPR"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"10s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"2"`
	// OnlyCompleted skips failed jobs.
	OnlyCompleted bool `env:"ONLY_COMPLETED" envDefault:"false"`
}

// Enabled reports whether the webhook is configured.
func (d DigestSinkConfig) Enabled() bool {
	return d.URL != ""
}

// Sanitize applies guardrails to webhook configuration values.
func (d *DigestSinkConfig) Sanitize() {
	d.URL = strings.TrimSpace(d.URL)
	d.BodyExpr = strings.TrimSpace(d.BodyExpr)
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	if d.RetryLimit < 0 {
		d.RetryLimit = 0
	}
}
