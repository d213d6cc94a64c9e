package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/DonggunSe0/aibbot/internal/identity"
	"github.com/DonggunSe0/aibbot/internal/session"
)

const streamWriteTimeout = 10 * time.Second

// StreamHandler pushes session snapshots over a WebSocket.
type StreamHandler struct {
	registry      *session.Registry
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new snapshot stream handler.
func NewStreamHandler(registry *session.Registry, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// streamMessage is the envelope of every frame in either direction.
type streamMessage struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Session stream request", "device_id", deviceID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	c := h.registry.Get(deviceID, sessionID)
	snapshots, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: client -> server.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, c, deviceID)
	}()

	// Output loop: controller -> client.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, snapshots, deviceID)
	}()

	wg.Wait()
	slog.Info("Session stream ended", "device_id", deviceID, "session_id", sessionID)
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// inputLoop answers keepalive pings. Each ping counts as activity for the
// idle eviction.
func (h *StreamHandler) inputLoop(ctx context.Context, ws *websocket.Conn, c *session.Controller, deviceID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "device_id", deviceID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "device_id", deviceID)
			}
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Ignoring malformed stream message", "device_id", deviceID, "error", err)
			continue
		}

		switch msg.Type {
		case "ping":
			c.Touch()
			if err := h.write(ctx, ws, streamMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		default:
			slog.Debug("Ignoring unknown stream message", "device_id", deviceID, "type", msg.Type)
		}
	}
}

// outputLoop forwards snapshots until the subscription closes, which
// happens when the controller is evicted.
func (h *StreamHandler) outputLoop(ctx context.Context, ws *websocket.Conn, snapshots <-chan session.Snapshot, deviceID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				slog.Debug("Session closed, ending stream", "device_id", deviceID)
				return
			}
			if err := h.write(ctx, ws, streamMessage{Type: "snapshot", Session: &snap}); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "device_id", deviceID)
				}
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, ws *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, msg)
}
