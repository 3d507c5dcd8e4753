// Package statsd emits digest pipeline metrics in the DogStatsD line format.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// defaultMaxPacket keeps a batch inside one Ethernet frame after IP and UDP headers.
	defaultMaxPacket     = 1432
	defaultFlushInterval = time.Second
)

// Sink is what the pipeline records metrics against. A nil Sink means metrics are off.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the StatsD agent and how lines are batched for it.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string

	// FlushInterval bounds how long a line waits in the buffer. Zero means one second.
	FlushInterval time.Duration
	// MaxPacketSize caps a datagram. Zero means 1432 bytes.
	MaxPacketSize int
}

// Client batches metric lines into newline-separated UDP datagrams. Lines are sent when
// the next one would overflow a packet, on every flush tick, and on Close.
type Client struct {
	prefix     string
	globalTags map[string]string
	tags       string // globalTags, encoded
	maxPacket  int
	logger     *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	buf     []byte
	dropped int64

	stop chan struct{}
	done chan struct{}
}

var _ Sink = (*Client)(nil)

// NewClient dials the agent and starts the flush loop. A disabled config or an empty
// address yields a client that discards everything.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: copyTags(cfg.GlobalTags),
		tags:       encodeTags(cfg.GlobalTags),
		maxPacket:  cfg.MaxPacketSize,
		logger:     logger,
	}
	if c.maxPacket <= 0 {
		c.maxPacket = defaultMaxPacket
	}

	addr := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || addr == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", addr, err)
	}
	c.conn = conn
	c.buf = make([]byte, 0, c.maxPacket)

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.flushLoop(interval, c.stop)
	return c, nil
}

// Enabled reports whether lines are being sent anywhere.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.record(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.record(name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.record(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Flush sends whatever is buffered.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close stops the flush loop, sends the remaining buffer and closes the socket. Calling it
// again is a no-op.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.flushLocked()
	if c.dropped > 0 {
		c.logger.Debug("statsd lines dropped", "count", c.dropped)
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) flushLoop(interval time.Duration, stop <-chan struct{}) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *Client) record(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}
	line := c.formatLine(metric, value, kind, tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if len(line) > c.maxPacket {
		c.dropped++
		return
	}
	if len(c.buf) > 0 && len(c.buf)+1+len(line) > c.maxPacket {
		c.flushLocked()
	}
	if len(c.buf) > 0 {
		c.buf = append(c.buf, '\n')
	}
	c.buf = append(c.buf, line...)
}

func (c *Client) formatLine(metric, value, kind string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)

	encoded := c.tags
	if len(tags) > 0 {
		// Local tags override global ones with the same key.
		merged := make(map[string]string, len(c.globalTags)+len(tags))
		for k, v := range c.globalTags {
			merged[strings.TrimSpace(k)] = v
		}
		for k, v := range tags {
			merged[strings.TrimSpace(k)] = v
		}
		encoded = encodeTags(merged)
	}
	if encoded != "" {
		b.WriteString("|#")
		b.WriteString(encoded)
	}
	return b.String()
}

func (c *Client) flushLocked() {
	if c.conn == nil || len(c.buf) == 0 {
		return
	}
	if _, err := c.conn.Write(c.buf); err != nil {
		c.logger.Debug("statsd write failed", "error", err, "bytes", len(c.buf))
	}
	c.buf = c.buf[:0]
}

func (c *Client) metricName(name string) string {
	n := metricNameReplacer.Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	n = strings.Trim(n, ".")
	switch {
	case n == "":
		return ""
	case c.prefix == "":
		return n
	default:
		return c.prefix + "." + n
	}
}

var (
	metricNameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "|", "_", "@", "_", "#", "_")
	// Model names like "gemini-2.5-pro:latest" or URLs would otherwise split a tag.
	tagValueReplacer = strings.NewReplacer(",", "_", "|", "_", "#", "_", "\n", "_", ":", "_")
)

// encodeTags renders tags as sorted key:value pairs without the leading "|#".
func encodeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		key := tagValueReplacer.Replace(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		pairs = append(pairs, key+":"+tagValueReplacer.Replace(strings.TrimSpace(v)))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// Tagged wraps a sink so every metric also carries tags. A nil sink stays nil.
func Tagged(sink Sink, tags map[string]string) Sink {
	if sink == nil {
		return nil
	}
	if len(tags) == 0 {
		return sink
	}
	return taggedSink{next: sink, tags: copyTags(tags)}
}

func copyTags(tags map[string]string) map[string]string {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		cp[k] = v
	}
	return cp
}

type taggedSink struct {
	next Sink
	tags map[string]string
}

func (s taggedSink) merge(local map[string]string) map[string]string {
	out := make(map[string]string, len(s.tags)+len(local))
	for k, v := range s.tags {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

func (s taggedSink) Count(name string, value int64, tags map[string]string) {
	s.next.Count(name, value, s.merge(tags))
}

func (s taggedSink) Gauge(name string, value float64, tags map[string]string) {
	s.next.Gauge(name, value, s.merge(tags))
}

func (s taggedSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.next.Timing(name, value, s.merge(tags))
}
