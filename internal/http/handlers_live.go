package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domainjob "github.com/target/paper-digest/internal/domain/job"
	"github.com/target/paper-digest/internal/domain/model"
	"github.com/target/paper-digest/internal/service"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

// LiveHandlers serves the per-job live channel.
type LiveHandlers struct {
	Jobs     *service.JobService
	Registry *domainjob.LiveRegistry
	Logger   *slog.Logger

	upgrader websocket.Upgrader
}

// NewLiveHandlers builds live handlers that accept upgrades from the given origins.
// An empty list accepts same-origin requests only; "*" or allowAny accepts every origin.
func NewLiveHandlers(
	jobs *service.JobService,
	registry *domainjob.LiveRegistry,
	allowedOrigins []string,
	allowAny bool,
	logger *slog.Logger,
) *LiveHandlers {
	return &LiveHandlers{
		Jobs:     jobs,
		Registry: registry,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins, allowAny),
		},
	}
}

func originChecker(allowed []string, allowAny bool) func(r *http.Request) bool {
	if allowAny || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if len(allowed) == 0 {
			return strings.EqualFold(u.Host, r.Host)
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimSuffix(a, "/"), origin)
		})
	}
}

// Live handles GET /api/jobs/{id}/live. The connection receives exactly one terminal
// message; a job that is already terminal is pushed immediately after registration.
func (h *LiveHandlers) Live(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := h.Jobs.Get(r.Context(), jobID); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.Logger.InfoContext(r.Context(), "live upgrade failed", "job_id", jobID, "error", err)
		return
	}

	ch := newWSChannel(conn)
	defer ch.Close()

	unregister, err := h.Registry.Register(r.Context(), jobID, ch)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "live register failed", "job_id", jobID, "error", err)
		_ = ch.closeWith(websocket.CloseInternalServerErr, "job lookup failed")
		return
	}
	defer unregister()

	stopPing := ch.keepAlive()
	defer stopPing()

	if err := ch.readUntilClosed(); err != nil {
		h.Logger.DebugContext(r.Context(), "live channel closed", "job_id", jobID, "error", err)
	}
}

// wsChannel adapts a websocket connection to domainjob.LiveChannel.
type wsChannel struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

// Send writes msg and then asks the client to close; a terminal message ends the conversation.
func (c *wsChannel) Send(ctx context.Context, msg model.LiveMessage) error {
	deadline := time.Now().Add(liveWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return err
	}
	if msg.Status.Terminal() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(msg.Status)),
			deadline,
		)
	}
	return nil
}

// Close tears down the connection. It is safe to call more than once.
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsChannel) closeWith(code int, reason string) error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(liveWriteWait),
	)
	return c.Close()
}

// keepAlive pings the client until the returned function is called.
func (c *wsChannel) keepAlive() func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(livePingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// readUntilClosed drains client frames so control messages are processed.
// It returns nil on a normal close.
func (c *wsChannel) readUntilClosed() error {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
	}
}
