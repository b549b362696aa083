package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// BotState is the full controller state persisted after every mutation.
// The file is small and human-readable on purpose: operators inspect and
// occasionally hand-edit it while the process is stopped.
type BotState struct {
	UpdatedAt time.Time `json:"updated_at"`
	Symbol    string    `json:"symbol"`

	Status         string          `json:"status"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	HeldQty        decimal.Decimal `json:"held_qty"`
	PendingOrderID string          `json:"pending_order_id,omitempty"`

	LastSellPrice decimal.Decimal   `json:"last_sell_price"`
	WindowMids    []decimal.Decimal `json:"window_mids,omitempty"`

	Risk    RiskState    `json:"risk"`
	Reserve ReserveState `json:"reserve"`
}

// RiskState holds the Risk Governor's daily counters.
type RiskState struct {
	DayKey          string          `json:"day_key"`
	TradeCount      int             `json:"trade_count"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl_quote"`
	ErrorTimestamps []time.Time     `json:"error_timestamps,omitempty"`
	LastTradeAt     time.Time       `json:"last_trade_at"`
}

// ReserveState holds the reserve watcher's watermark state.
type ReserveState struct {
	Initialized    bool            `json:"initialized"`
	InitialValue   decimal.Decimal `json:"initial_value"`
	HighWaterValue decimal.Decimal `json:"high_water_value"`
	LastSize       decimal.Decimal `json:"last_size"`
	BlockedUntil   time.Time       `json:"blocked_until"`
}

// Position converts the persisted fields back into a position state.
func (s BotState) Position() (types.PositionState, error) {
	status, err := types.ParsePositionStatus(s.Status)
	if err != nil {
		return types.PositionState{}, fmt.Errorf("%w: %v", types.ErrStateCorrupted, err)
	}
	return types.PositionState{
		Status:         status,
		EntryPrice:     s.EntryPrice,
		HeldQty:        s.HeldQty,
		PendingOrderID: s.PendingOrderID,
	}, nil
}

// StateFile persists BotState as JSON with atomic replacement: writes go
// to a temp file in the same directory and are renamed over the target, so
// a crash mid-write leaves the previous state intact.
type StateFile struct {
	path string
}

// NewStateFile creates a state file store at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the backing file path.
func (s *StateFile) Path() string {
	return s.path
}

// Save atomically replaces the state file.
func (s *StateFile) Save(state BotState) error {
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load reads the state file. A missing file returns ErrStateNotFound so
// callers can start fresh; unreadable content returns ErrStateCorrupted.
func (s *StateFile) Load() (BotState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BotState{}, fmt.Errorf("%w: %s", types.ErrStateNotFound, s.path)
		}
		return BotState{}, fmt.Errorf("read state: %w", err)
	}

	var state BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return BotState{}, fmt.Errorf("%w: %v", types.ErrStateCorrupted, err)
	}
	return state, nil
}
