package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// MultiAlerter fans one alert out to every configured channel, typically
// the console plus Telegram. Channels run concurrently so a slow bot API
// call cannot delay the trading loop's other notifications.
type MultiAlerter struct {
	mu       sync.RWMutex
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a fan-out alerter over the given channels.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger,
	}
}

// Name returns the name of the alerter.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// AddAlerter registers another channel.
func (m *MultiAlerter) AddAlerter(alerter Alerter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerters = append(m.alerters, alerter)
}

func (m *MultiAlerter) channels() []Alerter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alerter, len(m.alerters))
	copy(out, m.alerters)
	return out
}

// Alert delivers to all channels and joins any failures. One broken
// channel never suppresses delivery on the rest.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	alerters := m.channels()
	if len(alerters) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(alerters))

	for _, alerter := range alerters {
		wg.Add(1)
		go func(a Alerter) {
			defer wg.Done()
			if err := a.Alert(ctx, severity, message, fields...); err != nil {
				m.logger.Error("alerter failed",
					"alerter", a.Name(),
					"severity", severity.String(),
					"error", err,
				)
				errCh <- err
			}
		}(alerter)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AlertEvent delivers a predefined event at its default severity.
func (m *MultiAlerter) AlertEvent(ctx context.Context, event AlertEvent, message string, fields ...any) error {
	return m.Alert(ctx, EventSeverity(event), message, fields...)
}

// SendDailySummary forwards the summary to every channel with a dedicated
// format and falls back to a plain info alert for the rest.
func (m *MultiAlerter) SendDailySummary(ctx context.Context, summary DailySummary) error {
	var errs []error
	for _, a := range m.channels() {
		var err error
		if s, ok := a.(SummarySender); ok {
			err = s.SendDailySummary(ctx, summary)
		} else {
			err = a.Alert(ctx, EventSeverity(EventDailySummary), "Daily summary",
				"date", summary.Date.Format("2006-01-02"),
				"symbol", summary.Symbol,
				"pnl", summary.DailyPnL.StringFixed(2),
				"trades", summary.TotalTrades,
				"win_rate", summary.WinRate.StringFixed(1)+"%",
			)
		}
		if err != nil {
			m.logger.Error("daily summary delivery failed", "alerter", a.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ SummarySender = (*MultiAlerter)(nil)
