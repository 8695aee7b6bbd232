package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// tradeHeader is the column layout of trade exports.
var tradeHeader = []string{
	"ticket", "symbol", "side", "volume", "open_price", "close_price",
	"open_time", "close_time", "profit", "swap", "commission", "comment",
}

// timeLayouts lists the accepted timestamp formats. MT5 history exports use the second one.
var timeLayouts = []string{time.RFC3339, "2006.01.02 15:04:05", "2006-01-02 15:04:05"}

// WriteTradesToCSV writes trades to filename using the export column layout.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteTrades(file, trades)
}

// WriteTrades writes trades with a header row to w.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if t == nil {
			continue
		}
		closePrice, closeTime := "", ""
		if t.ClosePrice != nil {
			closePrice = t.ClosePrice.String()
		}
		if t.CloseTime != nil {
			closeTime = t.CloseTime.UTC().Format(time.RFC3339Nano)
		}
		record := []string{
			strconv.FormatInt(t.Ticket, 10),
			t.Symbol,
			string(t.Side),
			t.Volume.String(),
			t.OpenPrice.String(),
			closePrice,
			t.OpenTime.UTC().Format(time.RFC3339Nano),
			closeTime,
			t.Profit.String(),
			t.Swap.String(),
			t.Commission.String(),
			t.Comment,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesFromCSV parses trades from a file written by WriteTradesToCSV or an
// equivalent broker export. Columns are matched by header name; close_price,
// close_time, swap, commission and comment are optional.
func ReadTradesFromCSV(r io.Reader) ([]*domain.Trade, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ports.ErrInvalidTrades)
		}
		return nil, fmt.Errorf("%w: reading header: %w", ports.ErrInvalidTrades, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"ticket", "symbol", "side", "open_time", "profit"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ports.ErrInvalidTrades, required)
		}
	}

	trades := make([]*domain.Trade, 0)
	seen := make(map[int64]int)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ports.ErrInvalidTrades, line, err)
		}
		t, err := parseTradeRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ports.ErrInvalidTrades, line, err)
		}
		if prev, dup := seen[t.Ticket]; dup {
			return nil, fmt.Errorf("%w: line %d: ticket %d already seen on line %d", ports.ErrInvalidTrades, line, t.Ticket, prev)
		}
		seen[t.Ticket] = line
		trades = append(trades, t)
	}
	return trades, nil
}

func parseTradeRecord(record []string, cols map[string]int) (*domain.Trade, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	decimalField := func(name string, required bool) (decimal.Decimal, error) {
		raw := field(name)
		if raw == "" {
			if required {
				return decimal.Zero, fmt.Errorf("%s is required", name)
			}
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, " ", ""))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: invalid number %q", name, raw)
		}
		return d, nil
	}

	ticket, err := strconv.ParseInt(field("ticket"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ticket: %w", err)
	}
	side, err := domain.ParseSide(field("side"))
	if err != nil {
		return nil, err
	}
	openTime, err := parseTime(field("open_time"))
	if err != nil {
		return nil, fmt.Errorf("open_time: %w", err)
	}

	t := &domain.Trade{
		Ticket:   ticket,
		Symbol:   field("symbol"),
		Side:     side,
		OpenTime: openTime,
		Comment:  field("comment"),
	}
	if t.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if t.Volume, err = decimalField("volume", false); err != nil {
		return nil, err
	}
	if t.OpenPrice, err = decimalField("open_price", false); err != nil {
		return nil, err
	}
	if t.Profit, err = decimalField("profit", true); err != nil {
		return nil, err
	}
	if t.Swap, err = decimalField("swap", false); err != nil {
		return nil, err
	}
	if t.Commission, err = decimalField("commission", false); err != nil {
		return nil, err
	}
	if raw := field("close_price"); raw != "" {
		cp, err := decimalField("close_price", true)
		if err != nil {
			return nil, err
		}
		t.ClosePrice = &cp
	}
	if raw := field("close_time"); raw != "" {
		ct, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("close_time: %w", err)
		}
		if ct.Before(openTime) {
			return nil, fmt.Errorf("close_time %s is before open_time %s", raw, field("open_time"))
		}
		t.CloseTime = &ct
	}
	return t, nil
}

// parseTime accepts RFC3339 or a broker timestamp, which is taken as UTC.
func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
