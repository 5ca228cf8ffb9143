package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/askcos/prediction-gateway/internal/adapters"
)

// handleWatch upgrades to a websocket, waits for the task to reach a
// terminal state and sends its NormalizedResponse as one text message.
// Unknown or expired handles get the 404-shaped response. The connection
// is closed after the single message.
func (g *Gateway) handleWatch(a adapters.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := r.PathValue("task_id")

		// Server read/write timeouts do not apply to the upgraded connection.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, g.acceptOptions())
		if err != nil {
			g.logger.Ctx(r.Context()).Warn().Err(err).Str("task_id", handle).Msg("websocket upgrade failed")
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		resp := g.awaitTask(ctx, a, handle)
		if resp == nil {
			return
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			g.logger.Ctx(r.Context()).Debug().Err(err).Str("task_id", handle).Msg("watch write failed")
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
}

// awaitTask polls Retrieve until the task leaves the pending state. It
// returns nil when ctx ends first.
func (g *Gateway) awaitTask(ctx context.Context, a adapters.Adapter, handle string) *adapters.Response {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		resp, err := a.Retrieve(ctx, handle)
		switch {
		case err == nil:
			return resp
		case !errors.Is(err, adapters.ErrPending):
			return adapters.ErrorResponse(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (g *Gateway) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{OriginPatterns: []string{"localhost:*", "127.0.0.1:*"}}
	for origin := range g.origins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}
