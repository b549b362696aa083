package reserve

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Watermark tracks the reserve's quote value against its high-water mark.
// The baseline resets whenever the reserve size itself changes, so manual
// deposits or withdrawals never look like price moves.
type Watermark struct {
	mu sync.RWMutex

	initialized bool
	initial     decimal.Decimal
	peak        decimal.Decimal
	lastSize    decimal.Decimal
}

// sizeChangeTolerancePct is the relative size change that rebaselines the
// watermark; anything above one lot step also counts.
var sizeChangeTolerancePct = decimal.RequireFromString("0.05")

// NewWatermark creates an empty tracker.
func NewWatermark() *Watermark {
	return &Watermark{}
}

// Observe folds one reserve observation into the tracker. It returns true
// when the baseline was (re)set: on first use, or when size moved by more
// than one step or 5 percent since the last observation.
func (w *Watermark) Observe(size, value, step decimal.Decimal) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized || w.sizeChangedLocked(size, step) {
		w.initialized = true
		w.initial = value
		w.peak = value
		w.lastSize = size
		return true
	}

	w.lastSize = size
	if value.GreaterThan(w.peak) {
		w.peak = value
	}
	return false
}

func (w *Watermark) sizeChangedLocked(size, step decimal.Decimal) bool {
	diff := size.Sub(w.lastSize).Abs()
	if step.IsPositive() && diff.GreaterThan(step) {
		return true
	}
	if w.lastSize.IsPositive() && diff.Div(w.lastSize).GreaterThan(sizeChangeTolerancePct) {
		return true
	}
	return false
}

// Initialized reports whether a baseline exists.
func (w *Watermark) Initialized() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.initialized
}

// Initial returns the baseline value.
func (w *Watermark) Initial() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.initial
}

// Peak returns the high-water value.
func (w *Watermark) Peak() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.peak
}

// LastSize returns the last observed reserve size.
func (w *Watermark) LastSize() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastSize
}

// Reset clears the tracker so the next observation rebaselines.
func (w *Watermark) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.initialized = false
	w.initial = decimal.Zero
	w.peak = decimal.Zero
	w.lastSize = decimal.Zero
}

// Restore reloads persisted watermark state.
func (w *Watermark) Restore(initialized bool, initial, peak, lastSize decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.initialized = initialized
	w.initial = initial
	w.peak = peak
	w.lastSize = lastSize
}
