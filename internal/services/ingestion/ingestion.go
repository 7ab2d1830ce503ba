// Package ingestion connects to the live chat, market price and trade feeds.
//
// Each feed is a long-lived outbound websocket that reconnects after a fixed
// delay. Feeds write into bounded channels; the Manager runs one consumer per
// channel and hands values to the intake and the broadcaster.
package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

// ChatHandler receives chat messages
type ChatHandler interface {
	HandleChat(ctx context.Context, msg models.ChatMessage)
}

// MarketSink receives market data
type MarketSink interface {
	UpdateMarket(snapshot models.MarketSnapshot)
	Trade(trade models.Trade)
}

// offer pushes v without blocking, dropping it when ch is full
func offer[T any](ch chan T, v T, source string, logger arbor.ILogger) bool {
	select {
	case ch <- v:
		return true
	default:
		logger.Warn().Str("source", source).Int("capacity", cap(ch)).Msg("Ingestion buffer full, dropping message")
		return false
	}
}

// reconnectLoop runs connect until ctx is cancelled, waiting delay between attempts
func reconnectLoop(ctx context.Context, source string, delay time.Duration, logger arbor.ILogger, connect func(ctx context.Context) error) {
	for {
		err := connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn().Err(err).Str("source", source).Dur("delay", delay).Msg("Feed disconnected, reconnecting")
		} else {
			logger.Info().Str("source", source).Dur("delay", delay).Msg("Feed closed, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Manager owns the feed clients and their consumers
type Manager struct {
	cfg    *common.IngestionConfig
	chat   ChatHandler
	market MarketSink
	logger arbor.ILogger

	chatClient   *ChatClient
	marketClient *MarketClient
	tradeClient  *TradeClient

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds the feed clients enabled by cfg
func NewManager(cfg *common.IngestionConfig, chat ChatHandler, market MarketSink, logger arbor.ILogger) *Manager {
	m := &Manager{
		cfg:    cfg,
		chat:   chat,
		market: market,
		logger: logger,
	}

	if cfg.TokenAddress == "" {
		logger.Info().Msg("No token address configured, ingestion disabled")
		return m
	}

	if cfg.TestInput {
		logger.Info().Msg("Test input mode enabled, chat ingestion disabled")
	} else {
		m.chatClient = NewChatClient(cfg, logger)
	}

	if cfg.BirdeyeAPIKey != "" {
		m.marketClient = NewMarketClient(cfg, logger)
	} else {
		logger.Info().Msg("No Birdeye API key configured, market feed disabled")
	}

	if cfg.PumpPortalAPIKey != "" {
		var prices PriceSource
		if m.marketClient != nil {
			prices = m.marketClient
		}
		m.tradeClient = NewTradeClient(cfg, prices, logger)
	} else {
		logger.Info().Msg("No PumpPortal API key configured, trade feed disabled")
	}

	return m
}

// Start connects the enabled feeds
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	if m.chatClient != nil {
		m.spawn("chat-feed", func() { m.chatClient.Run(ctx) })
		m.spawn("chat-consumer", func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-m.chatClient.Messages():
					m.chat.HandleChat(ctx, msg)
				}
			}
		})
	}

	if m.marketClient != nil {
		m.spawn("market-feed", func() { m.marketClient.Run(ctx) })
		m.spawn("market-consumer", func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snapshot := <-m.marketClient.Updates():
					m.market.UpdateMarket(snapshot)
				}
			}
		})
	}

	if m.tradeClient != nil {
		m.spawn("trade-feed", func() { m.tradeClient.Run(ctx) })
		m.spawn("trade-consumer", func() {
			for {
				select {
				case <-ctx.Done():
					return
				case trade := <-m.tradeClient.Trades():
					m.market.Trade(trade)
				}
			}
		})
	}
}

func (m *Manager) spawn(name string, fn func()) {
	m.wg.Add(1)
	common.SafeGo(m.logger, name, func() {
		defer m.wg.Done()
		fn()
	})
}

// Stop disconnects all feeds and waits for their goroutines
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info().Msg("Ingestion stopped")
}

// Status reports which feeds are enabled
type Status struct {
	Chat   bool `json:"chat"`
	Market bool `json:"market"`
	Trades bool `json:"trades"`
}

// Status returns the enabled feeds
func (m *Manager) Status() Status {
	return Status{
		Chat:   m.chatClient != nil,
		Market: m.marketClient != nil,
		Trades: m.tradeClient != nil,
	}
}

// closeOnDone closes conn when ctx is cancelled. Call the returned func once the
// read loop has exited.
func closeOnDone(ctx context.Context, conn interface{ Close() error }) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
