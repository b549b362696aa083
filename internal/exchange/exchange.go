// Package exchange provides spot exchange connectivity for the trading loop.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Common exchange errors.
var (
	ErrNotFound       = errors.New("order not found")
	ErrRateLimited    = errors.New("rate limited by exchange")
	ErrSymbolInactive = errors.New("symbol not trading")
)

// Exchange is the narrow interface the trading core consumes. All calls may
// fail transiently (retryable, counted toward the error budget) or fatally
// (permission/ban class, terminates the process).
type Exchange interface {
	// Market data
	BookTicker(ctx context.Context, symbol string) (types.Sample, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)

	// Trading rules
	SymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error)

	// Account
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	CanTrade(ctx context.Context) (bool, error)

	// Orders
	PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (types.OrderRecord, error)
	GetOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error)

	Close() error
}

// APIError is a structured error returned by the exchange REST API.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api error: http=%d code=%d msg=%s", e.HTTPStatus, e.Code, e.Message)
}

// Fatal-class API codes: the account or key cannot trade, so retrying is
// pointless and running on is dangerous.
const (
	codeNewOrderRejected = -2010 // account restricted / insufficient permissions
	codeCancelRejected   = -2011
	codeInvalidAPIKey    = -2015
	codeUnauthorized     = -1002
)

// IsFatal reports whether the error indicates a permission/ban condition
// that must terminate the process.
func (e *APIError) IsFatal() bool {
	switch e.Code {
	case codeNewOrderRejected, codeInvalidAPIKey, codeUnauthorized:
		return true
	}
	return false
}

// IsClientError reports whether the request itself was malformed or refused
// (4xx); such calls must not be retried.
func (e *APIError) IsClientError() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

// Classify maps an arbitrary exchange call error to the controller's error
// taxonomy: types.ErrFatalAPI for permission/ban-class failures, the error
// itself otherwise (transient, retryable).
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsFatal() {
		return fmt.Errorf("%w: %v", types.ErrFatalAPI, apiErr)
	}
	return err
}

// IsFatal reports whether an error carries the fatal classification.
func IsFatal(err error) bool {
	return errors.Is(err, types.ErrFatalAPI)
}

// Retryable reports whether an exchange call may be retried: transient
// network and 5xx errors are, client errors and fatal errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsFatal() || apiErr.IsClientError() {
			return false
		}
	}
	return !IsFatal(err)
}
