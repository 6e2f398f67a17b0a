package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/livefeed/livefeed/server/internal/metrics"
)

const notFoundResponse = "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// Gateway routes upgrade requests to the hub and everything else to the
// regular handler.
type Gateway struct {
	path    string
	hub     http.Handler
	next    http.Handler
	metrics *metrics.HubMetrics
}

// New returns a Gateway that upgrades only on path. m must not be nil.
func New(path string, hub, next http.Handler, m *metrics.HubMetrics) *Gateway {
	return &Gateway{path: path, hub: hub, next: next, metrics: m}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		g.next.ServeHTTP(w, r)
		return
	}
	if r.URL.Path == g.path {
		g.hub.ServeHTTP(w, r)
		return
	}

	g.metrics.RejectedUpgrades.Inc()
	slog.Info("gateway: rejected upgrade", "path", r.URL.Path, "remote", r.RemoteAddr)
	reject(w)
}

// reject answers 404 on the raw connection and closes it.
func reject(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.Header().Set("Connection", "close")
		http.NotFound(w, nil)
		return
	}

	conn, buf, err := hj.Hijack()
	if err != nil {
		slog.Debug("gateway: hijack failed", "err", err)
		return
	}
	defer conn.Close()

	buf.WriteString(notFoundResponse) //nolint:errcheck
	buf.Flush()                       //nolint:errcheck
}
