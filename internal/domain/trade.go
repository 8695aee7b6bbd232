package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single MT5 position taken from a broker report.
// A trade without a CloseTime is still open and its Profit is unrealized.
type Trade struct {
	ID         string           `json:"id"`                   // Unique identifier (usually from DB)
	AccountID  string           `json:"accountId"`            // Owning account
	Ticket     int64            `json:"ticket"`               // Broker position ticket, unique per account
	Symbol     string           `json:"symbol"`               // Instrument (e.g., "EURUSD")
	Side       OrderSide        `json:"side"`                 // BUY or SELL
	Volume     decimal.Decimal  `json:"volume"`               // Size in lots
	OpenPrice  decimal.Decimal  `json:"openPrice"`            // Entry price
	ClosePrice *decimal.Decimal `json:"closePrice,omitempty"` // Exit price (nil if open)
	OpenTime   time.Time        `json:"openTime"`             // When the position was opened
	CloseTime  *time.Time       `json:"closeTime,omitempty"`  // When the position was closed (nil if open)
	Profit     decimal.Decimal  `json:"profit"`               // Gross P&L in account currency
	Swap       decimal.Decimal  `json:"swap"`
	Commission decimal.Decimal  `json:"commission"`
	Comment    string           `json:"comment,omitempty"`
}

// IsOpen checks if the trade has not been closed yet.
func (t *Trade) IsOpen() bool {
	return t.CloseTime == nil
}
