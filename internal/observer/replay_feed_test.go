package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseCSV(t *testing.T) {
	input := `timestamp,open,high,low,close,volume
2025-06-02 09:00:00,2500,2510,2495,2505,120
2025-06-02 09:01:00,2505,2512,2501,2510,95
garbage row
2025-06-02 09:02:00,2510,2515,2508,2512,80
`
	candles, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("len(candles) = %d, want 3 (header and bad row skipped)", len(candles))
	}
	if !candles[0].Close.Equal(d("2505")) {
		t.Errorf("first close = %s, want 2505", candles[0].Close)
	}
	if !candles[2].Volume.Equal(d("80")) {
		t.Errorf("last volume = %s, want 80", candles[2].Volume)
	}
}

func TestParseCSV_UnixTimestamps(t *testing.T) {
	// Seconds and milliseconds forms of 2025-06-02T09:00:00Z.
	input := "1748854800,2500,2510,2495,2505\n1748854860000,2505,2512,2501,2510\n"

	candles, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	if !candles[1].CloseTime.Equal(candles[0].CloseTime.Add(time.Minute)) {
		t.Errorf("ms timestamp parsed as %s, want one minute after %s",
			candles[1].CloseTime, candles[0].CloseTime)
	}
}

func TestReplayFeed_SubscribeStreamsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := "2025-06-02 09:00:00,2500,2510,2495,2505\n2025-06-02 09:01:00,2505,2512,2501,2510\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	feed := NewReplayFeed(path)
	ch, err := feed.Subscribe(context.Background(), "ETHFDUSD")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var got []types.Sample
	for s := range ch {
		got = append(got, s)
	}
	if len(got) != 2 {
		t.Fatalf("samples = %d, want 2", len(got))
	}
	if !got[0].Mid.Equal(d("2505")) || !got[1].Mid.Equal(d("2510")) {
		t.Errorf("mids = %s, %s; want 2505, 2510", got[0].Mid, got[1].Mid)
	}
	if !got[1].Timestamp.After(got[0].Timestamp) {
		t.Error("samples out of order")
	}
}

func TestReplayFeed_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, []byte("timestamp,open,high,low,close\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewReplayFeed(path).Subscribe(context.Background(), "ETHFDUSD")
	if err == nil {
		t.Fatal("header-only file should fail to load")
	}
}

func TestMemoryFeed(t *testing.T) {
	now := time.Now()
	feed := NewMemoryFeed(nil)
	feed.AddSample(types.Sample{Timestamp: now, Mid: d("100")})
	feed.AddSample(types.Sample{Timestamp: now.Add(time.Second), Mid: d("101")})

	ch, err := feed.Subscribe(context.Background(), "ETHFDUSD")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var count int
	for range ch {
		count++
	}
	if count != 2 {
		t.Errorf("samples = %d, want 2", count)
	}
}
