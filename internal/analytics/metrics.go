// Package analytics derives the trading statistics prop-firm rules are checked against.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
)

// DayKeyLayout is the layout of daily P&L keys (UTC calendar date).
const DayKeyLayout = "2006-01-02"

var (
	hundred = decimal.NewFromInt(100)

	// ProfitFactorNoLosses is reported when there are winning trades but no losing ones.
	ProfitFactorNoLosses = decimal.NewFromInt(999)
)

// DayKey returns the UTC calendar date of t as used in daily P&L maps.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// ComputeMetrics reduces a trade snapshot into the statistics used by the rule checker.
// The trades slice is not modified. now selects which day counts as today.
func ComputeMetrics(trades []*domain.Trade, initialBalance decimal.Decimal, now time.Time) domain.Metrics {
	metrics := domain.Metrics{
		DailyProfits: make(map[string]decimal.Decimal),
	}

	if len(trades) == 0 {
		return metrics
	}

	var winningTrades int
	for _, trade := range trades {
		if trade == nil {
			continue
		}
		metrics.TotalTrades++
		metrics.TotalProfit = metrics.TotalProfit.Add(trade.Profit)

		// Every trade, open or closed, lands on the day it was opened.
		key := DayKey(trade.OpenTime)
		metrics.DailyProfits[key] = metrics.DailyProfits[key].Add(trade.Profit)

		if trade.IsOpen() {
			metrics.OpenTrades++
			continue
		}

		metrics.ClosedTrades++
		switch {
		case trade.Profit.IsPositive():
			winningTrades++
			metrics.GrossProfit = metrics.GrossProfit.Add(trade.Profit)
		case trade.Profit.IsNegative():
			metrics.GrossLoss = metrics.GrossLoss.Add(trade.Profit.Abs())
		}
		if trade.Profit.GreaterThan(metrics.BestSingleTrade) {
			metrics.BestSingleTrade = trade.Profit
		}
	}

	metrics.DailyProfit = metrics.DailyProfits[DayKey(now)]
	metrics.TradingDays = len(metrics.DailyProfits)
	for _, profit := range metrics.DailyProfits {
		if profit.GreaterThan(metrics.BestTradingDay) {
			metrics.BestTradingDay = profit
		}
	}

	if metrics.ClosedTrades > 0 {
		metrics.WinRate = decimal.NewFromInt(int64(winningTrades)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(metrics.ClosedTrades)))
	}

	switch {
	case metrics.GrossLoss.IsPositive():
		metrics.ProfitFactor = metrics.GrossProfit.Div(metrics.GrossLoss)
	case metrics.GrossProfit.IsPositive():
		metrics.ProfitFactor = ProfitFactorNoLosses
	}

	metrics.CurrentDrawdown = MaxDrawdown(trades, initialBalance)
	return metrics
}

// MaxDrawdown replays trades in open-time order from initialBalance and returns the
// deepest fall below the running high-water mark, as a percentage of initialBalance.
func MaxDrawdown(trades []*domain.Trade, initialBalance decimal.Decimal) decimal.Decimal {
	if !initialBalance.IsPositive() {
		return decimal.Zero
	}

	ordered := make([]*domain.Trade, 0, len(trades))
	for _, trade := range trades {
		if trade != nil {
			ordered = append(ordered, trade)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OpenTime.Before(ordered[j].OpenTime)
	})

	balance := initialBalance
	peak := initialBalance
	maxDrawdown := decimal.Zero
	for _, trade := range ordered {
		balance = balance.Add(trade.Profit)
		if balance.GreaterThan(peak) {
			peak = balance
			continue
		}
		drawdown := peak.Sub(balance).Mul(hundred).Div(initialBalance)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// DailyProfit is one entry of the per-day P&L breakdown.
type DailyProfit struct {
	Day    time.Time
	Profit decimal.Decimal
}

// SortedDailyProfits returns the per-day P&L of m ordered by day.
func SortedDailyProfits(m domain.Metrics) []DailyProfit {
	days := make([]DailyProfit, 0, len(m.DailyProfits))
	for key, profit := range m.DailyProfits {
		day, err := time.Parse(DayKeyLayout, key)
		if err != nil {
			continue
		}
		days = append(days, DailyProfit{Day: day, Profit: profit})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Day.Before(days[j].Day)
	})
	return days
}
