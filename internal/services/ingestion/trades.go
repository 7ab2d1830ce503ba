package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

// TradeClient streams token trades from PumpPortal
type TradeClient struct {
	socketURL string
	apiKey    string
	address   string
	delay     time.Duration
	prices    PriceSource
	dialer    *websocket.Dialer
	trades    chan models.Trade
	logger    arbor.ILogger
}

// NewTradeClient creates a PumpPortal client. prices may be nil.
func NewTradeClient(cfg *common.IngestionConfig, prices PriceSource, logger arbor.ILogger) *TradeClient {
	return &TradeClient{
		socketURL: cfg.PumpPortalURL,
		apiKey:    cfg.PumpPortalAPIKey,
		address:   cfg.TokenAddress,
		delay:     common.ParseDurationOr(cfg.ReconnectDelay, 5*time.Second),
		prices:    prices,
		dialer:    websocket.DefaultDialer,
		trades:    make(chan models.Trade, bufferSize(cfg)),
		logger:    logger,
	}
}

// Trades returns the channel of parsed trades
func (c *TradeClient) Trades() <-chan models.Trade {
	return c.trades
}

// Run streams trades until ctx is cancelled
func (c *TradeClient) Run(ctx context.Context) {
	reconnectLoop(ctx, "trades", c.delay, c.logger, c.connect)
}

func (c *TradeClient) lastPrice() float64 {
	if c.prices == nil {
		return 0
	}
	return c.prices.LastPrice()
}

func (c *TradeClient) connect(ctx context.Context) error {
	endpoint := c.socketURL + "?api-key=" + url.QueryEscape(c.apiKey)
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial trade socket: %w", err)
	}
	defer conn.Close()
	release := closeOnDone(ctx, conn)
	defer release()

	subscribe := map[string]interface{}{
		"method": "subscribeTokenTrade",
		"keys":   []string{c.address},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("failed to subscribe to trades: %w", err)
	}
	c.logger.Info().Str("address", c.address).Msg("Trade socket connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("trade socket read failed: %w", err)
		}
		trade, ok := parseTrade(raw, c.lastPrice(), time.Now())
		if !ok {
			continue
		}
		offer(c.trades, trade, "trades", c.logger)
	}
}

// parseTrade converts a PumpPortal frame into a Trade. Only buy and sell
// frames are accepted. When the frame carries no USD amount the value is
// estimated from lastPrice.
func parseTrade(raw []byte, lastPrice float64, now time.Time) (models.Trade, bool) {
	var msg struct {
		TxType          string    `json:"txType"`
		TraderPublicKey string    `json:"traderPublicKey"`
		SolAmount       flexFloat `json:"solAmount"`
		TokenAmount     flexFloat `json:"tokenAmount"`
		USDAmount       flexFloat `json:"usdAmount"`
		Signature       string    `json:"signature"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.Trade{}, false
	}
	if msg.TxType != "buy" && msg.TxType != "sell" {
		return models.Trade{}, false
	}

	tokenAmount := float64(msg.TokenAmount)
	usdValue := float64(msg.USDAmount)
	if usdValue == 0 && lastPrice > 0 && tokenAmount > 0 {
		usdValue = tokenAmount * lastPrice
	}

	user := "Unknown"
	if msg.TraderPublicKey != "" {
		user = msg.TraderPublicKey
		if len(user) > 8 {
			user = user[:8]
		}
		user += "..."
	}

	return models.Trade{
		IsBuy:       msg.TxType == "buy",
		Type:        msg.TxType,
		User:        user,
		SolAmount:   float64(msg.SolAmount),
		TokenAmount: tokenAmount,
		USDValue:    usdValue,
		TxHash:      msg.Signature,
		Timestamp:   now.UnixMilli(),
	}, true
}
