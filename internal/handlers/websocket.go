package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/ternarybob/playforge/internal/services/validation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Observers may be served from any origin
	},
}

// Submitter admits raw prompt text from an observer
type Submitter interface {
	Submit(ctx context.Context, raw string, source models.Source, origin interfaces.ClientSink) (interfaces.SubmitReceipt, error)
}

// Bootstrapper sends the catch-up events a new observer needs
type Bootstrapper interface {
	Bootstrap(sink interfaces.ClientSink, snapshot models.ObserverSnapshot) error
}

// WSMessage is the envelope for every frame in both directions
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// inboundMessage defers payload decoding until the type is known
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type generatePayload struct {
	Prompt string `json:"prompt"`
}

// wsClient is one observer connection. Writes are serialized by mu.
type wsClient struct {
	id      string
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Send delivers a single event to this observer
func (c *wsClient) Send(eventType string, payload interface{}) error {
	data, err := json.Marshal(WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	return c.write(data)
}

// WebSocketHandler is the observer hub. It implements interfaces.EventBroadcaster.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	writeTimeout     time.Duration
	scheduler        interfaces.JobScheduler
	bootstrapper     Bootstrapper
	submitter        Submitter
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	timeout := 5 * time.Second
	if config != nil {
		timeout = common.ParseDurationOr(config.WriteTimeout, timeout)
	}

	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		writeTimeout:     timeout,
		serverInstanceID: common.NewInstanceID(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")
	return h
}

// Bind connects the hub to the services it depends on. The hub is created
// first because the broadcaster needs it.
func (h *WebSocketHandler) Bind(scheduler interfaces.JobScheduler, bootstrapper Bootstrapper, submitter Submitter) {
	h.scheduler = scheduler
	h.bootstrapper = bootstrapper
	h.submitter = submitter
}

// ServerInstanceID identifies this process
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of registered observers
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{id: uuid.New().String(), conn: conn, timeout: h.writeTimeout}
	ctx := r.Context()

	if err := h.attach(ctx, client); err != nil {
		h.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to attach observer")
		conn.Close()
		return
	}

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Str("client_id", client.id).Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.logger.Debug().Err(err).Str("client_id", client.id).Msg("Ignoring malformed frame")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		h.handleMessage(ctx, client, msg)
	}
}

// attach sends the bootstrap and registers the client on the scheduler
// goroutine so no job event can slip between the two
func (h *WebSocketHandler) attach(ctx context.Context, client *wsClient) error {
	register := func() int {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.clients[client.conn] = client
		return len(h.clients)
	}

	if h.scheduler == nil || h.bootstrapper == nil {
		total := register()
		h.logger.Debug().Str("client_id", client.id).Msgf("WebSocket client connected (total: %d)", total)
		return nil
	}

	var bootErr error
	err := h.scheduler.Attach(ctx, func(snapshot models.ObserverSnapshot) {
		if bootErr = h.bootstrapper.Bootstrap(client, snapshot); bootErr != nil {
			return
		}
		total := register()
		h.logger.Debug().
			Str("client_id", client.id).
			Int("tracked", len(snapshot.Tracked)).
			Msgf("WebSocket client connected (total: %d)", total)
	})
	if err != nil {
		return err
	}
	return bootErr
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, client *wsClient, msg inboundMessage) {
	switch msg.Type {
	case interfaces.MessageGenerateCode:
		var payload generatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.logger.Debug().Err(err).Str("client_id", client.id).Msg("Invalid generate_code payload")
			return
		}
		if h.submitter == nil {
			return
		}

		receipt, err := h.submitter.Submit(ctx, payload.Prompt, models.SourceWeb, client)
		if err != nil {
			if errors.Is(err, validation.ErrRejected) {
				return
			}
			h.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to submit prompt")
			if sendErr := client.Send(interfaces.EventAIError, map[string]string{"message": "Request could not be queued"}); sendErr != nil {
				h.logger.Warn().Err(sendErr).Msg("Failed to send error to client")
			}
			return
		}

		h.logger.Info().
			Str("client_id", client.id).
			Str("request_id", receipt.Job.ID).
			Int("position", receipt.Position).
			Msg("Prompt submitted from web")
	default:
		h.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
	}
}

// Broadcast sends an event to all connected clients
func (h *WebSocketHandler) Broadcast(eventType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warn().Err(err).Str("client_id", c.id).Str("type", eventType).Msg("Failed to send to client, dropping")
			h.drop(c)
		}
	}
}

// drop unregisters a client after a failed write. Closing the conn also ends
// its read loop.
func (h *WebSocketHandler) drop(c *wsClient) {
	h.mu.Lock()
	if h.clients[c.conn] == c {
		delete(h.clients, c.conn)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Close disconnects every observer
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, c := range h.clients {
		c.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		conn.Close()
		delete(h.clients, conn)
	}
}
