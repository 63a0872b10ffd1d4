package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/albarami/qnwis/pkg/models"
)

// wsWriteTimeout bounds how long a single event send may block a
// subscriber's write, the same purpose the teacher's sendRaw/writeTimeout
// pair serves for its own connection manager.
const wsWriteTimeout = 5 * time.Second

// wsHandler upgrades the request to a WebSocket and streams requestID's
// progress events as JSON, one frame per event, until the run reaches its
// terminal {stage=done} event or the client disconnects. Unlike the
// teacher's ConnectionManager this stream is scoped to exactly one run
// and needs no subscribe/unsubscribe protocol: events.Hub already keys
// subscriptions by request ID, so each socket subscribes to one ID for
// its whole lifetime.
func (s *Server) wsHandler(c *echo.Context) error {
	requestID := c.Param("id")

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation deferred the same way as the teacher's
		// handler_ws.go; this binding has no browser-facing deployment yet.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, unsubscribe := s.hub.Subscribe(requestID)
	defer unsubscribe()

	// A closed connection surfaces as a read error; watch for it in its
	// own goroutine so a client going away unblocks the send loop below
	// promptly instead of only on its next write attempt.
	go s.watchForClose(ctx, conn, cancel)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.sendEvent(ctx, conn, ev); err != nil {
				slog.Warn("websocket send failed", "request_id", requestID, "error", err)
				return nil
			}
			if ev.Stage == models.StageDone {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) watchForClose(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *Server) sendEvent(ctx context.Context, conn *websocket.Conn, ev models.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
