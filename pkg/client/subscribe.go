package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCloseGrace    = 15 * time.Second
	defaultHeartbeat     = 30 * time.Second
	defaultMaxReconnects = 5
)

// Subscription identifies a log stream and tunes its connection behavior.
type Subscription struct {
	// Entity is the entity type, e.g. "job" or "dataset".
	Entity string
	// ProjectID scopes the stream.
	ProjectID string
	// ID is the entity id.
	ID string
	// CloseGrace is how long the socket stays open after an "end" frame. Default: 15s.
	CloseGrace time.Duration
	// Heartbeat is the ping interval. Default: 30s.
	Heartbeat time.Duration
	// MaxReconnects is the number of consecutive failed reconnects tolerated. Default: 5.
	MaxReconnects int
}

type controlFrame struct {
	Action string      `json:"action"`
	Data   controlData `json:"data"`
}

type controlData struct {
	Type        string `json:"type"`
	Entity      string `json:"entity"`
	ID          string `json:"id"`
	ProjectUUID string `json:"project_uuid"`
}

type sessionResult struct {
	connected bool
	done      bool
	frames    int
}

// Subscribe streams the logs of one entity to handler until the server sends
// an "end" frame. Dropped connections are re-established and resubscribed;
// historical logs are requested on the first connection only.
func (c *Client) Subscribe(ctx context.Context, entity, projectID, id string, handler FrameHandler) error {
	return c.SubscribeWith(ctx, Subscription{Entity: entity, ProjectID: projectID, ID: id}, handler)
}

// SubscribeWith is Subscribe with explicit connection settings.
func (c *Client) SubscribeWith(ctx context.Context, sub Subscription, handler FrameHandler) error {
	if sub.CloseGrace <= 0 {
		sub.CloseGrace = defaultCloseGrace
	}
	if sub.Heartbeat <= 0 {
		sub.Heartbeat = defaultHeartbeat
	}
	if sub.MaxReconnects <= 0 {
		sub.MaxReconnects = defaultMaxReconnects
	}
	if handler == nil {
		handler = func(Frame) {}
	}
	log := c.logger.With("entity", sub.Entity, "id", sub.ID)

	tokens, err := c.fetchTokens(ctx)
	if err != nil {
		return err
	}
	res, err := c.session(ctx, sub, tokens, true, handler)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !res.connected {
		return connectionError(err)
	}
	log.Debug("websocket disconnected", "done", res.done, "error", err)

	backoff := &JitteredBackoff{Factor: c.cfg.BackoffFactor, Rand: c.rand}
	failures := 0
	var lastErr error
	for !res.done {
		if err := c.sleep(ctx, backoff.Next(failures)); err != nil {
			return err
		}
		tokens, err := c.fetchTokens(ctx)
		if err != nil {
			return err
		}
		res, err = c.session(ctx, sub, tokens, false, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if res.done || res.frames > 0 {
			ReconnectsTotal.WithLabelValues(sub.Entity, "ok").Inc()
			failures = 0
			log.Debug("websocket disconnected", "done", res.done)
			continue
		}
		if err == nil {
			err = errors.New("connection closed before any frame was received")
		}
		ReconnectsTotal.WithLabelValues(sub.Entity, "failed").Inc()
		failures++
		lastErr = err
		log.Debug("reconnect failed", "attempt", failures, "error", err)
		if failures >= sub.MaxReconnects {
			return connectionError(lastErr)
		}
	}
	return nil
}

// session runs one websocket connection until it closes.
func (c *Client) session(ctx context.Context, sub Subscription, tokens Tokens, first bool, handler FrameHandler) (sessionResult, error) {
	var res sessionResult

	target := endpoint(c.cfg.WSURL, "wss") + "?Authorization=" + url.QueryEscape(tokens.IDToken)
	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent())
	headers.Set("Content-Type", "application/json")

	conn, resp, err := c.dialer().DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return res, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return res, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	subscribe := controlFrame{
		Action: "subscribe",
		Data:   controlData{Type: "logs", Entity: sub.Entity, ID: sub.ID, ProjectUUID: sub.ProjectID},
	}
	g := new(errgroup.Group)
	if first {
		g.Go(func() error {
			return send(controlFrame{
				Action: "getlogs",
				Data:   controlData{Type: "init", Entity: sub.Entity, ID: sub.ID, ProjectUUID: sub.ProjectID},
			})
		})
	}
	g.Go(func() error { return send(subscribe) })
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("failed to send control frame: %w", err)
	}
	res.connected = true

	deadline := func() { conn.SetReadDeadline(time.Now().Add(2 * sub.Heartbeat)) }
	deadline()
	conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(sub.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(sub.Heartbeat/2)); err != nil {
					return
				}
			}
		}
	}()

	var closer *time.Timer
	defer func() {
		if closer != nil {
			closer.Stop()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if res.done || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return res, nil
			}
			return res, err
		}
		deadline()

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("skipping malformed log frame", "entity", sub.Entity, "id", sub.ID, "error", err)
			continue
		}
		FramesTotal.WithLabelValues(sub.Entity).Inc()

		if frame.Type() == "end" {
			if !res.done {
				res.done = true
				closer = time.AfterFunc(sub.CloseGrace, func() {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					conn.Close()
				})
			}
			continue
		}
		res.frames++
		handler(frame)
	}
}

func connectionError(err error) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: "connection error: " + err.Error(),
		Err:     err,
	}
}
