package models

import "time"

// MarketSnapshot is the latest known token price data
type MarketSnapshot struct {
	MarketCap float64 `json:"marketCap"`
	Price     float64 `json:"price"`
}

// Trade is a single buy or sell on the tracked token
type Trade struct {
	IsBuy       bool    `json:"isBuy"`
	Type        string  `json:"type"`
	User        string  `json:"user"`
	SolAmount   float64 `json:"solAmount"`
	TokenAmount float64 `json:"tokenAmount"`
	USDValue    float64 `json:"usdValue"`
	TxHash      string  `json:"txHash"`
	Timestamp   int64   `json:"timestamp"` // Unix milliseconds
}

// ChatMessage is one message received from the live chat feed
type ChatMessage struct {
	Username   string    `json:"username"`
	Text       string    `json:"text"`
	Event      string    `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
}
