// Package ws streams sync events to browsers over WebSocket. The handler
// sits at the server level rather than in a plugin: it needs the token
// service for query-parameter auth, which plugins never see.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/treeline/internal/auth"
	"github.com/HerbHall/treeline/internal/treesync"
	"github.com/HerbHall/treeline/pkg/plugin"
)

// Handler provides the WebSocket endpoint for real-time sync updates.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	bus    plugin.EventBus
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to sync events.
func NewHandler(tokens *auth.TokenService, bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers the WebSocket route on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws", h.handleStream)
}

// Close disconnects all clients. Called at server shutdown.
func (h *Handler) Close() {
	h.hub.Close()
}

// handleStream upgrades the connection to WebSocket and streams sync events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	// Validate JWT from query parameter (browser WS API doesn't support headers).
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	// Accept WebSocket upgrade.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Allow any origin since we validate via JWT token.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	// Client disconnected -- stop write pump and unregister.
	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// relayTopics lists every bus topic forwarded to WebSocket clients.
var relayTopics = []string{
	treesync.TopicRunStarted,
	treesync.TopicRunCompleted,
	treesync.TopicRunFailed,
	treesync.TopicDeviceAdded,
	treesync.TopicDeviceUpdated,
	treesync.TopicDeviceMoved,
	treesync.TopicDeviceDeleted,
	treesync.TopicGroupCreated,
	treesync.TopicGroupPruned,
	treesync.TopicFieldCheckFailed,
}

// subscribeToEvents subscribes to tree sync events and forwards them to all
// connected WebSocket clients.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}
	for _, topic := range relayTopics {
		h.bus.Subscribe(topic, h.forward)
	}
	h.logger.Info("subscribed to sync events for WebSocket broadcasting",
		zap.Int("topics", len(relayTopics)))
}

// forward relays one bus event to every connected client.
func (h *Handler) forward(_ context.Context, event plugin.Event) {
	msg := Message{
		Type:      event.Topic,
		Timestamp: event.Timestamp,
		Data:      event.Payload,
	}
	if run, ok := event.Payload.(treesync.RunEvent); ok {
		msg.RunID = run.RunID
	}
	h.hub.Broadcast(msg)
}
