package observer

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// ReplayFeed replays historical candles from a CSV file as price samples,
// one per candle close, with no pacing. CSV format:
// timestamp,open,high,low,close[,volume], optional header row.
type ReplayFeed struct {
	filePath string
	candles  []types.Candle
	loaded   bool
}

// NewReplayFeed creates a replay feed from a CSV file.
func NewReplayFeed(filePath string) *ReplayFeed {
	return &ReplayFeed{filePath: filePath}
}

// Subscribe streams one sample per candle and closes the channel when the
// file is exhausted.
func (f *ReplayFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	if !f.loaded {
		if err := f.load(); err != nil {
			return nil, err
		}
	}

	ch := make(chan types.Sample, 100)

	go func() {
		defer close(ch)
		for _, c := range f.candles {
			sample := types.Sample{
				Timestamp: c.CloseTime,
				Bid:       c.Close,
				Ask:       c.Close,
				Mid:       c.Close,
			}
			select {
			case <-ctx.Done():
				return
			case ch <- sample:
			}
		}
	}()

	return ch, nil
}

// Candles returns the loaded candles, loading the file on first use.
func (f *ReplayFeed) Candles() ([]types.Candle, error) {
	if !f.loaded {
		if err := f.load(); err != nil {
			return nil, err
		}
	}
	return f.candles, nil
}

// Close releases the loaded data.
func (f *ReplayFeed) Close() error {
	f.candles = nil
	f.loaded = false
	return nil
}

// Name returns the feed identifier.
func (f *ReplayFeed) Name() string {
	return "replay"
}

func (f *ReplayFeed) load() error {
	file, err := os.Open(f.filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	candles, err := ParseCSV(file)
	if err != nil {
		return fmt.Errorf("parse csv: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("%w: %s has no usable rows", types.ErrInsufficientData, f.filePath)
	}

	f.candles = candles
	f.loaded = true
	return nil
}

// ParseCSV parses candles from a CSV reader. Rows that fail to parse are
// skipped so a stray footer or blank line does not abort a replay.
func ParseCSV(r io.Reader) ([]types.Candle, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var candles []types.Candle
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		lineNum++

		if lineNum == 1 && isHeader(record) {
			continue
		}
		if len(record) < 5 {
			continue
		}

		candle, err := parseRecord(record)
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

func parseRecord(record []string) (types.Candle, error) {
	var c types.Candle

	ts, err := parseTimestamp(record[0])
	if err != nil {
		return c, fmt.Errorf("parse timestamp: %w", err)
	}
	c.OpenTime = ts
	c.CloseTime = ts

	if c.Open, err = decimal.NewFromString(record[1]); err != nil {
		return c, fmt.Errorf("parse open: %w", err)
	}
	if c.High, err = decimal.NewFromString(record[2]); err != nil {
		return c, fmt.Errorf("parse high: %w", err)
	}
	if c.Low, err = decimal.NewFromString(record[3]); err != nil {
		return c, fmt.Errorf("parse low: %w", err)
	}
	if c.Close, err = decimal.NewFromString(record[4]); err != nil {
		return c, fmt.Errorf("parse close: %w", err)
	}

	if len(record) > 5 {
		if vol, err := decimal.NewFromString(record[5]); err == nil {
			c.Volume = vol
		}
	}

	return c, nil
}

func parseTimestamp(s string) (time.Time, error) {
	// Unix seconds or milliseconds first.
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		if unix > 1e12 {
			return time.UnixMilli(unix), nil
		}
		return time.Unix(unix, 0), nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown timestamp format: %s", s)
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	headers := []string{"timestamp", "time", "date", "datetime", "open_time", "open"}
	for _, h := range headers {
		if record[0] == h {
			return true
		}
	}
	return false
}

// MemoryFeed delivers pre-built samples. Useful for tests.
type MemoryFeed struct {
	samples []types.Sample
}

// NewMemoryFeed creates a feed from pre-loaded samples.
func NewMemoryFeed(samples []types.Sample) *MemoryFeed {
	return &MemoryFeed{samples: samples}
}

// AddSample appends a sample to the feed.
func (f *MemoryFeed) AddSample(s types.Sample) {
	f.samples = append(f.samples, s)
}

// Subscribe streams the stored samples and closes the channel.
func (f *MemoryFeed) Subscribe(ctx context.Context, symbol string) (<-chan types.Sample, error) {
	ch := make(chan types.Sample, len(f.samples))

	go func() {
		defer close(ch)
		for _, s := range f.samples {
			select {
			case <-ctx.Done():
				return
			case ch <- s:
			}
		}
	}()

	return ch, nil
}

// Close is a no-op for memory feeds.
func (f *MemoryFeed) Close() error {
	return nil
}

// Name returns the feed identifier.
func (f *MemoryFeed) Name() string {
	return "memory"
}

// Feed conformance checks.
var (
	_ Feed = (*TickerFeed)(nil)
	_ Feed = (*CandleFeed)(nil)
	_ Feed = (*ReplayFeed)(nil)
	_ Feed = (*MemoryFeed)(nil)
)
