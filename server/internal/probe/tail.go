package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/livefeed/livefeed/pkg/types"
)

// SubscribeURL turns an http(s) base URL and a path into a ws(s) URL.
func SubscribeURL(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Tail subscribes at wsURL and calls fn for every event received. It returns
// nil when ctx is cancelled or the server closes the stream normally.
func Tail(ctx context.Context, wsURL string, fn func(types.Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ev types.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			return errors.Join(fmt.Errorf("decode event %q", msg), err)
		}
		fn(ev)
	}
}
