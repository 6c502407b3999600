package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"deliverySync/internal/events"
	"deliverySync/internal/session"
)

// EventStream consumes the service's websocket push feed.
type EventStream struct {
	url    string
	sess   *session.Session
	dialer *websocket.Dialer
}

// NewEventStream targets eventsURL (ws:// or wss://). An empty eventsURL is
// derived from the client's base URL.
func (c *Client) NewEventStream(eventsURL string) (*EventStream, error) {
	if eventsURL == "" {
		u := *c.base
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = c.base.Path + "/ws/events"
		eventsURL = u.String()
	}
	u, err := url.Parse(eventsURL)
	if err != nil {
		return nil, fmt.Errorf("parse events url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("events url %q: scheme must be ws or wss", eventsURL)
	}
	return &EventStream{
		url:    eventsURL,
		sess:   c.sess,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Run dials, then hands every event to fn until ctx ends or the connection
// drops. A dropped connection returns an error; the caller reconnects and
// polling reconciles what was missed in between.
func (s *EventStream) Run(ctx context.Context, fn func(events.Event)) error {
	h := http.Header{}
	if s.sess != nil {
		tok, err := s.sess.Token()
		if err != nil {
			return err
		}
		h.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, h)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial events: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if strings.TrimSpace(string(e.Type)) == "" {
			continue
		}
		fn(e)
	}
}
