// Package indicator provides technical indicator calculations.
package indicator

import (
	"github.com/shopspring/decimal"
)

// SMA calculates a Simple Moving Average over a bounded window.
// Unlike a strict fixed-period average, it also exposes the partial mean
// while the window is still filling, so callers can apply their own
// warm-up threshold.
type SMA struct {
	window int
	values []decimal.Decimal
	sum    decimal.Decimal
}

// NewSMA creates a new SMA calculator with the given window size.
func NewSMA(window int) *SMA {
	if window < 1 {
		window = 1
	}
	return &SMA{
		window: window,
		values: make([]decimal.Decimal, 0, window),
		sum:    decimal.Zero,
	}
}

// Update adds a new value, evicting the oldest when the window is full,
// and returns the mean over the values currently held.
func (s *SMA) Update(value decimal.Decimal) decimal.Decimal {
	s.values = append(s.values, value)
	s.sum = s.sum.Add(value)

	if len(s.values) > s.window {
		s.sum = s.sum.Sub(s.values[0])
		s.values = s.values[1:]
	}

	return s.Current()
}

// Current returns the mean over the values currently held, or zero when
// the window is empty.
func (s *SMA) Current() decimal.Decimal {
	if len(s.values) == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(len(s.values))))
}

// Full returns true once the window holds its configured size.
func (s *SMA) Full() bool {
	return len(s.values) >= s.window
}

// Window returns the configured window size.
func (s *SMA) Window() int {
	return s.window
}

// Count returns the number of values currently held.
func (s *SMA) Count() int {
	return len(s.values)
}

// Reset clears all data.
func (s *SMA) Reset() {
	s.values = s.values[:0]
	s.sum = decimal.Zero
}

// Values returns a copy of the window contents, oldest first.
func (s *SMA) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.values))
	copy(out, s.values)
	return out
}
