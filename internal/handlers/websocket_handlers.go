package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chat-server/internal/auth"
	"chat-server/internal/dispatch"
	"chat-server/internal/models"
	"chat-server/internal/ws"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

const readWait = 60 * time.Second

type WebSocketHandlers struct {
	authService *auth.Service
	registry    *ws.Registry
	dispatcher  *dispatch.Dispatcher
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, registry *ws.Registry, dispatcher *dispatch.Dispatcher) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		registry:    registry,
		dispatcher:  dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and runs its whole lifecycle: the
// authentication handshake, the read loop, and teardown.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}
	h.serve(r.Context(), conn)
}

func (h *WebSocketHandlers) serve(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	// The first frame is the handshake: it must carry both tokens, and it
	// doubles as the connection's first action.
	env, err := readEnvelope(conn)
	if err != nil || env == nil {
		closePolicy(conn, "Invalid handshake")
		conn.Close()
		return
	}
	if env.AccessToken == "" || env.CSRFToken == "" {
		closePolicy(conn, "Missing authentication tokens")
		conn.Close()
		return
	}

	principal, err := h.authService.Verify(ctx, env.AccessToken)
	if err != nil {
		closePolicy(conn, "Authentication failed: invalid access token")
		conn.Close()
		return
	}

	peer := ws.NewPeer(conn)
	if err := h.registry.Register(peer, principal); err != nil {
		closePolicy(conn, "Connection already registered")
		conn.Close()
		return
	}
	go peer.WritePump()
	defer func() {
		h.registry.Unregister(peer)
		peer.Close()
	}()

	logger.Info("User %s connected (peer %s)", principal.Username, peer.ID)

	if err := h.dispatcher.Dispatch(ctx, peer, env); err != nil {
		logger.Error("Peer %s dead during handshake dispatch: %v", peer.ID, err)
		closePolicy(conn, "Unexpected error")
		return
	}

	for {
		env, err := readEnvelope(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for %s: %v", principal.Username, err)
			}
			return
		}
		if env == nil {
			// Malformed frame: diagnose and keep the connection open.
			if err := peer.SendText("Invalid message format"); err != nil {
				return
			}
			continue
		}
		if err := h.dispatcher.Dispatch(ctx, peer, env); err != nil {
			logger.Error("Peer %s dead, terminating: %v", peer.ID, err)
			closePolicy(conn, "Unexpected error")
			return
		}
	}
}

// readEnvelope returns (nil, nil) for a frame that is not valid JSON, so the
// caller can reply instead of tearing the connection down.
func readEnvelope(conn *websocket.Conn) (*models.Envelope, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	env := &models.Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, nil
	}
	return env, nil
}

// closePolicy sends a 1008 close frame. WriteControl is safe alongside the
// peer's write pump.
func closePolicy(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
