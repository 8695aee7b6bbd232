package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

func TestReadTradesFromCSV(t *testing.T) {
	input := strings.Join([]string{
		"Ticket,Symbol,Side,Volume,Open_Price,Close_Price,Open_Time,Close_Time,Profit,Swap,Commission,Comment",
		"1001,EURUSD,buy,1.00,1.08500,1.08720,2024.05.20 09:00:00,2024.05.20 11:30:00,220.00,-1.2,-7,scalp",
		"1002,XAUUSD,SELL,0.5,2410.35,,2024-05-20T23:30:00+09:00,,-42.10,,,",
	}, "\n")

	trades, err := ReadTradesFromCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	closed := trades[0]
	assert.Equal(t, int64(1001), closed.Ticket)
	assert.Equal(t, domain.Buy, closed.Side)
	assert.False(t, closed.IsOpen())
	assert.Equal(t, time.Date(2024, 5, 20, 11, 30, 0, 0, time.UTC), *closed.CloseTime)
	assert.True(t, decimal.RequireFromString("220").Equal(closed.Profit))
	assert.True(t, decimal.RequireFromString("1.0872").Equal(*closed.ClosePrice))
	assert.True(t, decimal.RequireFromString("-7").Equal(closed.Commission))
	assert.Equal(t, "scalp", closed.Comment)

	open := trades[1]
	assert.True(t, open.IsOpen())
	assert.Nil(t, open.ClosePrice)
	assert.Equal(t, time.Date(2024, 5, 20, 14, 30, 0, 0, time.UTC), open.OpenTime)
	assert.True(t, open.Swap.IsZero())
}

func TestReadTradesFromCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "empty", input: "", wantMsg: "empty file"},
		{name: "missing column", input: "ticket,symbol,side,open_time\n", wantMsg: `missing column "profit"`},
		{name: "bad side", input: "ticket,symbol,side,open_time,profit\n1,EURUSD,long,2024-05-20T09:00:00Z,1\n", wantMsg: "unknown order side"},
		{name: "bad number", input: "ticket,symbol,side,open_time,profit\n1,EURUSD,buy,2024-05-20T09:00:00Z,abc\n", wantMsg: "profit: invalid number"},
		{name: "bad time", input: "ticket,symbol,side,open_time,profit\n1,EURUSD,buy,yesterday,1\n", wantMsg: "unrecognised timestamp"},
		{
			name:    "close before open",
			input:   "ticket,symbol,side,open_time,close_time,profit\n1,EURUSD,buy,2024-05-20T09:00:00Z,2024-05-20T08:00:00Z,1\n",
			wantMsg: "is before open_time",
		},
		{
			name:    "duplicate ticket",
			input:   "ticket,symbol,side,open_time,profit\n1,EURUSD,buy,2024-05-20T09:00:00Z,1\n1,EURUSD,buy,2024-05-20T09:00:00Z,2\n",
			wantMsg: "already seen on line 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTradesFromCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrInvalidTrades)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestWriteTradesToCSV_ReadBack(t *testing.T) {
	closeTime := time.Date(2024, 5, 21, 16, 0, 0, 0, time.UTC)
	closePrice := decimal.RequireFromString("18342.5")
	trades := []*domain.Trade{
		{
			Ticket:     77,
			Symbol:     "NAS100",
			Side:       domain.Sell,
			Volume:     decimal.RequireFromString("2"),
			OpenPrice:  decimal.RequireFromString("18400"),
			ClosePrice: &closePrice,
			OpenTime:   time.Date(2024, 5, 21, 14, 0, 0, 0, time.UTC),
			CloseTime:  &closeTime,
			Profit:     decimal.RequireFromString("115"),
			Comment:    "news, fade",
		},
		nil,
	}
	path := filepath.Join(t.TempDir(), "trades.csv")

	require.NoError(t, WriteTradesToCSV(trades, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := ReadTradesFromCSV(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "news, fade", got[0].Comment)
	assert.True(t, closeTime.Equal(*got[0].CloseTime))
	assert.True(t, closePrice.Equal(*got[0].ClosePrice))
}

func TestWriteTrades_KeepsSubSecondTimes(t *testing.T) {
	first := time.Date(2024, 5, 21, 14, 0, 0, 150_000_000, time.UTC)
	second := first.Add(300 * time.Millisecond)
	closeTime := second.Add(250 * time.Microsecond)
	trades := []*domain.Trade{
		{Ticket: 2, Symbol: "EURUSD", Side: domain.Buy, OpenTime: second, CloseTime: &closeTime, Profit: decimal.NewFromInt(-40)},
		{Ticket: 1, Symbol: "EURUSD", Side: domain.Buy, OpenTime: first, Profit: decimal.NewFromInt(90)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, trades))
	got, err := ReadTradesFromCSV(&buf)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.True(t, second.Equal(got[0].OpenTime), "open time %s", got[0].OpenTime)
	assert.True(t, closeTime.Equal(*got[0].CloseTime))
	assert.True(t, first.Equal(got[1].OpenTime))
	assert.True(t, got[1].OpenTime.Before(got[0].OpenTime))
}
