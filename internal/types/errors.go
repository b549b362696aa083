package types

import "errors"

// Sentinel errors for the trading controller.
var (
	// Risk Governor errors
	ErrTradingHalted     = errors.New("trading halted: kill switch active")
	ErrDailyLossExceeded = errors.New("daily loss limit reached")
	ErrTradeCapReached   = errors.New("daily trade count limit reached")
	ErrErrorBudgetSpent  = errors.New("error budget exhausted")
	ErrCooldownActive    = errors.New("cooldown since last trade not elapsed")

	// Execution errors
	ErrOrderRejected       = errors.New("order rejected by exchange")
	ErrBelowMinNotional    = errors.New("order notional below exchange minimum")
	ErrSpreadTooWide       = errors.New("spread above configured maximum")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Exchange errors
	ErrFatalAPI    = errors.New("fatal exchange error")
	ErrRateLimited = errors.New("exchange rate limit hit")
	ErrStaleData   = errors.New("market data is stale")

	// Signal errors
	ErrInsufficientData = errors.New("not enough samples for trend evaluation")

	// State errors
	ErrStateNotFound  = errors.New("state file not found")
	ErrStateCorrupted = errors.New("state file corrupted")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidSymbol = errors.New("invalid symbol")
)
