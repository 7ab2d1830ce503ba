package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/httpclient"
	"github.com/ternarybob/playforge/internal/models"
)

// Supply used to derive market cap from price
const tokenSupply = 1_000_000_000

// PriceSource reports the latest known token price
type PriceSource interface {
	LastPrice() float64
}

// MarketClient streams token prices from Birdeye
type MarketClient struct {
	apiURL    string
	socketURL string
	apiKey    string
	address   string
	delay     time.Duration
	http      *http.Client
	dialer    websocket.Dialer
	updates   chan models.MarketSnapshot
	logger    arbor.ILogger

	mu        sync.RWMutex
	lastPrice float64
}

// NewMarketClient creates a Birdeye client for cfg.TokenAddress
func NewMarketClient(cfg *common.IngestionConfig, logger arbor.ILogger) *MarketClient {
	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = []string{"echo-protocol"}

	return &MarketClient{
		apiURL:    strings.TrimSuffix(cfg.BirdeyeAPIURL, "/"),
		socketURL: cfg.BirdeyeSocketURL,
		apiKey:    cfg.BirdeyeAPIKey,
		address:   cfg.TokenAddress,
		delay:     common.ParseDurationOr(cfg.ReconnectDelay, 5*time.Second),
		http:      httpclient.NewDefaultHTTPClient(15 * time.Second),
		dialer:    dialer,
		updates:   make(chan models.MarketSnapshot, bufferSize(cfg)),
		logger:    logger,
	}
}

func bufferSize(cfg *common.IngestionConfig) int {
	if cfg.BufferSize > 0 {
		return cfg.BufferSize
	}
	return 256
}

// Updates returns the channel of price updates
func (c *MarketClient) Updates() <-chan models.MarketSnapshot {
	return c.updates
}

// LastPrice returns the latest price seen, or 0
func (c *MarketClient) LastPrice() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPrice
}

func (c *MarketClient) setPrice(price float64) {
	c.mu.Lock()
	c.lastPrice = price
	c.mu.Unlock()
}

// Run fetches the initial overview and then streams prices until ctx is cancelled
func (c *MarketClient) Run(ctx context.Context) {
	snapshot, err := c.FetchInitial(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to fetch initial token overview")
	} else {
		c.logger.Info().
			Float64("price", snapshot.Price).
			Float64("market_cap", snapshot.MarketCap).
			Msg("Fetched initial token overview")
		offer(c.updates, snapshot, "market", c.logger)
	}

	reconnectLoop(ctx, "market", c.delay, c.logger, c.connect)
}

// FetchInitial reads the token overview over REST
func (c *MarketClient) FetchInitial(ctx context.Context) (models.MarketSnapshot, error) {
	endpoint := fmt.Sprintf("%s/defi/token_overview?address=%s&ui_amount_mode=scaled", c.apiURL, url.QueryEscape(c.address))
	body, err := httpclient.GetJSON(ctx, c.http, endpoint, map[string]string{
		"x-chain":   "solana",
		"X-API-KEY": c.apiKey,
	})
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("token overview request failed: %w", err)
	}

	snapshot, err := parseTokenOverview(body)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	c.setPrice(snapshot.Price)
	return snapshot, nil
}

func (c *MarketClient) connect(ctx context.Context) error {
	endpoint := c.socketURL + "?x-api-key=" + url.QueryEscape(c.apiKey)
	header := http.Header{"Origin": []string{"https://birdeye.so"}}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("failed to dial price socket: %w", err)
	}
	defer conn.Close()
	release := closeOnDone(ctx, conn)
	defer release()

	c.logger.Info().Str("address", c.address).Msg("Price socket connected")

	subscribe := map[string]interface{}{
		"type": "SUBSCRIBE_PRICE",
		"data": map[string]string{
			"chartType": "1m",
			"currency":  "usd",
			"address":   c.address,
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("failed to subscribe to prices: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("price socket read failed: %w", err)
		}
		snapshot, ok := parsePriceMessage(raw)
		if !ok {
			continue
		}
		c.setPrice(snapshot.Price)
		offer(c.updates, snapshot, "market", c.logger)
	}
}

// flexFloat accepts a JSON number or a numeric string
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// parseTokenOverview reads price and market cap from a token_overview response.
// Market cap prefers fdv, then marketCap, then price times supply.
func parseTokenOverview(body []byte) (models.MarketSnapshot, error) {
	var resp struct {
		Success bool `json:"success"`
		Data    *struct {
			Price     flexFloat `json:"price"`
			FDV       flexFloat `json:"fdv"`
			MarketCap flexFloat `json:"marketCap"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("failed to decode token overview: %w", err)
	}
	if !resp.Success || resp.Data == nil {
		return models.MarketSnapshot{}, errors.New("token overview reported failure")
	}

	price := float64(resp.Data.Price)
	marketCap := float64(resp.Data.FDV)
	if marketCap == 0 {
		marketCap = float64(resp.Data.MarketCap)
	}
	if marketCap == 0 {
		marketCap = price * tokenSupply
	}
	return models.MarketSnapshot{MarketCap: marketCap, Price: price}, nil
}

// parsePriceMessage extracts a snapshot from a PRICE_DATA frame
func parsePriceMessage(raw []byte) (models.MarketSnapshot, bool) {
	var msg struct {
		Type string `json:"type"`
		Data struct {
			Close flexFloat `json:"c"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "PRICE_DATA" {
		return models.MarketSnapshot{}, false
	}

	price := float64(msg.Data.Close)
	marketCap := math.Floor(price * tokenSupply)
	if marketCap <= 0 || math.IsNaN(marketCap) || math.IsInf(marketCap, 0) {
		return models.MarketSnapshot{}, false
	}
	return models.MarketSnapshot{MarketCap: marketCap, Price: price}, true
}
