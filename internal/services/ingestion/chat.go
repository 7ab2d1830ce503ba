package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

// chatEvents are the Socket.IO events that may carry a chat message
var chatEvents = map[string]bool{
	"message":         true,
	"chat":            true,
	"newMessage":      true,
	"messageReceived": true,
	"roomMessage":     true,
	"chatMessage":     true,
	"userMessage":     true,
	"coinChat":        true,
	"tradeChat":       true,
	"globalMessage":   true,
	"broadcast":       true,
}

// ChatClient reads the token's live chat room over Socket.IO
type ChatClient struct {
	socketURL   string
	address     string
	delay       time.Duration
	joinDelay   time.Duration
	historyWait time.Duration
	dialer      *websocket.Dialer
	messages    chan models.ChatMessage
	logger      arbor.ILogger
}

// NewChatClient creates a live chat client for cfg.TokenAddress
func NewChatClient(cfg *common.IngestionConfig, logger arbor.ILogger) *ChatClient {
	return &ChatClient{
		socketURL:   cfg.ChatURL,
		address:     cfg.TokenAddress,
		delay:       common.ParseDurationOr(cfg.ReconnectDelay, 5*time.Second),
		joinDelay:   time.Second,
		historyWait: 2 * time.Second,
		dialer:      websocket.DefaultDialer,
		messages:    make(chan models.ChatMessage, bufferSize(cfg)),
		logger:      logger,
	}
}

// Messages returns the channel of chat messages
func (c *ChatClient) Messages() <-chan models.ChatMessage {
	return c.messages
}

// Run reads chat until ctx is cancelled
func (c *ChatClient) Run(ctx context.Context) {
	reconnectLoop(ctx, "chat", c.delay, c.logger, c.connect)
}

// chatSession serializes writes on one connection
type chatSession struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *chatSession) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (s *chatSession) emit(event string, data interface{}) error {
	frame, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (c *ChatClient) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.socketURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial chat socket: %w", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := closeOnDone(connCtx, conn)
	defer release()

	session := &chatSession{id: uuid.New().String(), conn: conn}
	c.logger.Debug().Str("session", session.id).Msg("Chat socket opened")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("chat socket read failed: %w", err)
		}

		p, err := parsePacket(string(raw))
		if err != nil {
			continue
		}

		switch p.engine {
		case engineOpen:
			if err := session.write(string([]byte{engineMessage, socketConnect})); err != nil {
				return fmt.Errorf("failed to connect namespace: %w", err)
			}
		case enginePing:
			if err := session.write(string(enginePong) + p.data); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		case engineClose:
			return nil
		case engineMessage:
			switch p.socket {
			case socketConnect:
				c.logger.Info().Str("session", session.id).Str("address", c.address).Msg("Chat connected")
				c.scheduleJoin(connCtx, session)
			case socketConnectError:
				return fmt.Errorf("chat connect rejected: %s", p.data)
			case socketDisconnect:
				return nil
			case socketEvent:
				c.handleEvent(p.data)
			}
		}
	}
}

// scheduleJoin joins the token room after joinDelay and requests history historyWait later
func (c *ChatClient) scheduleJoin(ctx context.Context, session *chatSession) {
	common.SafeGo(c.logger, "chat-join", func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.joinDelay):
		}

		joins := []struct {
			event string
			data  interface{}
		}{
			{"join", c.address},
			{"subscribe", map[string]string{"room": c.address}},
			{"joinRoom", map[string]string{"roomId": c.address}},
			{"join", map[string]string{"room": c.address, "type": "chat"}},
		}
		for _, j := range joins {
			if err := session.emit(j.event, j.data); err != nil {
				c.logger.Warn().Err(err).Str("event", j.event).Msg("Failed to join chat room")
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.historyWait):
		}

		for _, event := range []string{"getMessages", "history"} {
			if err := session.emit(event, c.address); err != nil {
				c.logger.Warn().Err(err).Str("event", event).Msg("Failed to request chat history")
				return
			}
		}
	})
}

func (c *ChatClient) handleEvent(data string) {
	name, arg, err := decodeEvent(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring malformed chat event")
		return
	}
	for _, msg := range chatMessages(name, arg, time.Now()) {
		offer(c.messages, msg, "chat", c.logger)
	}
}

// chatMessages extracts chat messages from an event argument. The argument
// may be a single message object or an array of them.
func chatMessages(event string, arg json.RawMessage, now time.Time) []models.ChatMessage {
	if !chatEvents[event] || len(arg) == 0 {
		return nil
	}

	var items []json.RawMessage
	if strings.HasPrefix(strings.TrimSpace(string(arg)), "[") {
		if err := json.Unmarshal(arg, &items); err != nil {
			return nil
		}
	} else {
		items = []json.RawMessage{arg}
	}

	var out []models.ChatMessage
	for _, item := range items {
		var m struct {
			Username flexString `json:"username"`
			User     flexString `json:"user"`
			Text     flexString `json:"text"`
			Message  flexString `json:"message"`
		}
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}

		text := string(m.Text)
		if text == "" {
			text = string(m.Message)
		}
		if text == "" {
			continue
		}

		username := string(m.Username)
		if username == "" {
			username = string(m.User)
		}
		if username == "" {
			username = "Anonymous"
		}

		out = append(out, models.ChatMessage{
			Username:   username,
			Text:       text,
			Event:      event,
			ReceivedAt: now,
		})
	}
	return out
}

// flexString decodes a JSON string and ignores any other type
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = ""
		return nil
	}
	*f = flexString(s)
	return nil
}
