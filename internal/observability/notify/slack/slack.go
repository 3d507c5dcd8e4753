// Package slack posts digest failure alerts to a Slack incoming webhook as Block Kit messages.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/target/paper-digest/internal/observability/notify"
)

const (
	defaultUsername = "paper-digest"
	// Slack rejects section text over 3000 characters.
	maxSectionText = 2900
	maxRetryAfter  = 30 * time.Second
)

// Config describes the webhook and message defaults.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix, when set, turns the job id into a link (prefix + "/" + id).
	JobURLPrefix string
}

// Client delivers digest failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	jobLinkFn  func(id string) string
	hc         *http.Client
	backoff    func(attempt int) time.Duration
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	webhook := strings.TrimSpace(cfg.WebhookURL)
	if webhook == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if u, err := url.Parse(webhook); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("slack webhook url %q is not absolute", webhook)
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}

	return &Client{
		webhookURL: webhook,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		jobLinkFn:  jobLinker(cfg.JobURLPrefix),
		hc:         hc,
		backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * 200 * time.Millisecond },
	}, nil
}

// SendJobFailure posts the alert, retrying transport errors, 5xx and 429 responses.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		wait, retry, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.retryLimit {
			break
		}
		if wait <= 0 {
			wait = c.backoff(attempt + 1)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}

// post sends one request. It reports how long Slack asked us to wait and whether the
// failure is worth retrying.
func (c *Client) post(ctx context.Context, body []byte) (time.Duration, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if readErr != nil {
			return 0, false, fmt.Errorf("read slack response: %w", readErr)
		}
		return 0, false, nil
	}

	err = fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp.Header.Get("Retry-After")), true, err
	case resp.StatusCode >= 500:
		return 0, true, err
	default:
		return 0, false, err
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }

func (c *Client) buildMessage(p notify.JobFailurePayload) message {
	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	jobRef := ""
	if p.JobID != "" {
		jobRef = "`" + escape(p.JobID) + "`"
		if link := c.jobLinkFn(p.JobID); link != "" {
			jobRef = "<" + link + "|" + escape(p.JobID) + ">"
		}
	}

	headline := "*Digest failed*"
	if jobRef != "" {
		headline += " " + jobRef
	}
	if p.Stage != "" {
		headline += " during " + escape(p.Stage)
	}

	blocks := []block{{Type: "section", Text: ptr(mrkdwn(headline))}}

	var fields []textObject
	for _, f := range []struct{ label, value string }{
		{"Severity", severity},
		{"Paper", escape(p.URL)},
		{"Owner", escape(p.Owner)},
		{"Error class", escape(p.ErrorClass)},
	} {
		if strings.TrimSpace(f.value) != "" {
			fields = append(fields, mrkdwn("*"+f.label+"*\n"+f.value))
		}
	}
	if len(fields) > 0 {
		blocks = append(blocks, block{Type: "section", Fields: fields})
	}

	if msg := strings.TrimSpace(p.Error); msg != "" {
		blocks = append(blocks, block{Type: "section", Text: ptr(mrkdwn("```" + truncate(escape(msg), maxSectionText) + "```"))})
	}

	footer := []textObject{mrkdwn(at.UTC().Format(time.RFC3339))}
	if meta := formatMetadata(p.Metadata); meta != "" {
		footer = append(footer, mrkdwn(meta))
	}
	blocks = append(blocks, block{Type: "context", Elements: footer})

	fallback := fmt.Sprintf("Digest failed (%s)", severity)
	if p.URL != "" {
		fallback += ": " + escape(p.URL)
	}

	return message{
		Text:     fallback,
		Username: c.username,
		Channel:  c.channel,
		Blocks:   blocks,
	}
}

func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, escape(k)+"="+escape(meta[k]))
	}
	return strings.Join(parts, " · ")
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return slackEscaper.Replace(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// jobLinker returns a function mapping a job id to prefix/id, or to "" when the prefix is
// not an absolute URL.
func jobLinker(prefix string) func(string) string {
	prefix = strings.TrimSpace(prefix)
	u, err := url.Parse(prefix)
	if prefix == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return func(string) string { return "" }
	}
	base := u.String()
	return func(id string) string {
		id = strings.TrimSpace(id)
		if id == "" {
			return ""
		}
		link, err := url.JoinPath(base, id)
		if err != nil {
			return ""
		}
		return link
	}
}

func ptr[T any](v T) *T { return &v }
