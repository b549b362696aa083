// Package alerting provides notification capabilities for the trading bot.
package alerting

import (
	"context"
	"fmt"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter defines the interface for sending alerts.
type Alerter interface {
	// Alert sends an alert with the given severity and message.
	Alert(ctx context.Context, severity Severity, message string, fields ...any) error
	// Name returns the name of the alerter.
	Name() string
}

// Field represents a key-value pair for structured alert data.
type Field struct {
	Key   string
	Value any
}

// FormatFields converts variadic fields to a formatted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	result := ""
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		if result != "" {
			result += "\n"
		}
		result += fmt.Sprintf("• %s: %v", key, value)
	}
	return result
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventTradingHalted is sent when the daily kill switch latches.
	EventTradingHalted AlertEvent = "trading_halted"
	// EventFatalAPIError is sent when the exchange reports a
	// permission-class failure and the process is shutting down.
	EventFatalAPIError AlertEvent = "fatal_api_error"
	// EventReserveTriggered is sent when the reserve watcher trips its
	// trailing stop or take-profit.
	EventReserveTriggered AlertEvent = "reserve_triggered"
	// EventFundingSell is sent when reserve holdings are sold to refill
	// the trading pot.
	EventFundingSell AlertEvent = "funding_sell"
	// EventOrderFilled is sent when an order is filled.
	EventOrderFilled AlertEvent = "order_filled"
	// EventOrderRejected is sent when an order is rejected.
	EventOrderRejected AlertEvent = "order_rejected"
	// EventPositionOpened is sent when a position is opened.
	EventPositionOpened AlertEvent = "position_opened"
	// EventPositionClosed is sent when a position is closed.
	EventPositionClosed AlertEvent = "position_closed"
	// EventDailySummary is sent for daily trading summary.
	EventDailySummary AlertEvent = "daily_summary"
	// EventFeedStale is sent when market data stops advancing.
	EventFeedStale AlertEvent = "feed_stale"
	// EventBotStarted is sent when bot starts.
	EventBotStarted AlertEvent = "bot_started"
	// EventBotStopped is sent when bot stops.
	EventBotStopped AlertEvent = "bot_stopped"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventTradingHalted, EventFatalAPIError:
		return SeverityCritical
	case EventReserveTriggered:
		return SeverityHigh
	case EventOrderRejected, EventFeedStale, EventFundingSell:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
