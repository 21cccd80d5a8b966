package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"confluenceBot/internal/domain"
)

var barHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

var tradeHeader = []string{
	"id", "run_id", "symbol", "label", "leg", "signal_type", "combined", "direction", "quantity",
	"entry_price", "exit_price", "stop_loss", "target", "price_move", "r_multiple",
	"entry_bar", "exit_bar", "entry_time", "exit_time", "close_reason",
}

// WriteBarsToCSV writes bars with an RFC3339 header row, creating the parent
// directory when needed.
func WriteBarsToCSV(bars []*domain.Bar, filename string) error {
	return writeCSV(filename, barHeader, len(bars), func(i int) []string {
		b := bars[i]
		return []string{
			b.OpenTime.UTC().Format(time.RFC3339),
			b.CloseTime.UTC().Format(time.RFC3339),
			b.Symbol,
			b.Interval,
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
	})
}

// ReadBarsFromCSV reads a file written by WriteBarsToCSV. Times may also be
// unix milliseconds. Rows are returned in file order.
func ReadBarsFromCSV(filename string) ([]*domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadBars(file)
}

// ReadBars parses bar rows from r.
func ReadBars(r io.Reader) ([]*domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(barHeader)
	reader.TrimLeadingSpace = true

	var bars []*domain.Bar
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(record[0], barHeader[0]) {
			continue
		}
		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(record []string) (*domain.Bar, error) {
	openTime, err := parseTime(record[0])
	if err != nil {
		return nil, fmt.Errorf("open_time: %w", err)
	}
	closeTime, err := parseTime(record[1])
	if err != nil {
		return nil, fmt.Errorf("close_time: %w", err)
	}
	var values [5]float64
	for i := range values {
		values[i], err = strconv.ParseFloat(record[4+i], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", barHeader[4+i], err)
		}
	}
	return &domain.Bar{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Symbol:    record[2],
		Interval:  record[3],
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		IsFinal:   true,
	}, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// WriteTradesToCSV writes closed legs, one row each.
func WriteTradesToCSV(trades []domain.Trade, filename string) error {
	return writeCSV(filename, tradeHeader, len(trades), func(i int) []string {
		t := trades[i]
		return []string{
			strconv.FormatInt(t.ID, 10),
			t.RunID,
			t.Symbol,
			t.Label,
			strconv.Itoa(t.Leg),
			string(t.SignalType),
			strconv.FormatBool(t.Combined),
			string(t.Direction),
			formatFloat(t.Quantity),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.StopLoss),
			formatFloat(t.Target),
			formatFloat(t.PriceMove),
			formatFloat(t.RMultiple),
			strconv.Itoa(t.EntryBar),
			strconv.Itoa(t.ExitBar),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.CloseReason),
		}
	})
}

func writeCSV(filename string, header []string, n int, row func(i int) []string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
