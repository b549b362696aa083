package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/exchange"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
	"golang.org/x/time/rate"
)

// Client implements the exchange.Exchange interface against the Binance
// spot REST API.
type Client struct {
	cfg    Config
	logger *slog.Logger

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Binance client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond),
	}
}

// sign appends timestamp/recvWindow and an HMAC-SHA256 signature.
func (c *Client) sign(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(c.cfg.RecvWindowMs))

	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return params
}

// doRequest performs one HTTP call and decodes either the result or a
// structured API error.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	if signed {
		params = c.sign(params)
	}

	reqURL := c.cfg.BaseURL + path
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &exchange.APIError{HTTPStatus: resp.StatusCode, Message: string(data)}
		var e struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(data, &e) == nil && e.Code != 0 {
			apiErr.Code = e.Code
			apiErr.Message = e.Msg
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			return fmt.Errorf("%w: %v", exchange.ErrRateLimited, apiErr)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// call wraps doRequest with bounded retry on transient failures: backoff
// doubles each attempt starting from RetryBaseInterval.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	var lastErr error
	backoff := c.cfg.RetryBaseInterval

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying exchange call",
				"path", path,
				"attempt", attempt,
				"backoff", backoff,
				"err", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		// Params are consumed by signing, rebuild per attempt.
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}

		lastErr = c.doRequest(ctx, method, path, p, signed, out)
		if lastErr == nil {
			return nil
		}
		if !exchange.Retryable(lastErr) {
			break
		}
	}

	return exchange.Classify(lastErr)
}

// BookTicker returns the current best bid/ask as a Sample.
func (c *Client) BookTicker(ctx context.Context, symbol string) (types.Sample, error) {
	var resp struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}

	params := url.Values{"symbol": {symbol}}
	if err := c.call(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false, &resp); err != nil {
		return types.Sample{}, err
	}

	bid, err := decimal.NewFromString(resp.BidPrice)
	if err != nil {
		return types.Sample{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := decimal.NewFromString(resp.AskPrice)
	if err != nil {
		return types.Sample{}, fmt.Errorf("parse ask: %w", err)
	}

	return types.Sample{
		Timestamp: time.Now(),
		Bid:       bid,
		Ask:       ask,
		Mid:       bid.Add(ask).Div(decimal.NewFromInt(2)),
	}, nil
}

// Klines returns recent candles for the symbol.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	var raw [][]json.RawMessage

	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := c.call(ctx, http.MethodGet, "/api/v3/klines", params, false, &raw); err != nil {
		return nil, err
	}

	candles := make([]types.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("parse kline: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(k []json.RawMessage) (types.Candle, error) {
	var openMs, closeMs int64
	var open, high, low, closeP, volume string

	fields := []struct {
		idx int
		dst any
	}{
		{0, &openMs}, {1, &open}, {2, &high}, {3, &low}, {4, &closeP}, {5, &volume}, {6, &closeMs},
	}
	for _, f := range fields {
		if err := json.Unmarshal(k[f.idx], f.dst); err != nil {
			return types.Candle{}, err
		}
	}

	c := types.Candle{
		OpenTime:  time.UnixMilli(openMs),
		CloseTime: time.UnixMilli(closeMs),
	}
	var err error
	if c.Open, err = decimal.NewFromString(open); err != nil {
		return types.Candle{}, err
	}
	if c.High, err = decimal.NewFromString(high); err != nil {
		return types.Candle{}, err
	}
	if c.Low, err = decimal.NewFromString(low); err != nil {
		return types.Candle{}, err
	}
	if c.Close, err = decimal.NewFromString(closeP); err != nil {
		return types.Candle{}, err
	}
	if c.Volume, err = decimal.NewFromString(volume); err != nil {
		return types.Candle{}, err
	}
	return c, nil
}

// SymbolFilters fetches the trading rules for the symbol.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Status  string `json:"status"`
			Filters []struct {
				FilterType        string `json:"filterType"`
				TickSize          string `json:"tickSize"`
				StepSize          string `json:"stepSize"`
				MinQty            string `json:"minQty"`
				MinNotional       string `json:"minNotional"`
				BidMultiplierUp   string `json:"bidMultiplierUp"`
				BidMultiplierDown string `json:"bidMultiplierDown"`
				MultiplierUp      string `json:"multiplierUp"`
				MultiplierDown    string `json:"multiplierDown"`
			} `json:"filters"`
		} `json:"symbols"`
	}

	params := url.Values{"symbol": {symbol}}
	if err := c.call(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &resp); err != nil {
		return types.SymbolFilters{}, err
	}
	if len(resp.Symbols) == 0 {
		return types.SymbolFilters{}, fmt.Errorf("%w: %s", types.ErrInvalidSymbol, symbol)
	}

	sym := resp.Symbols[0]
	if sym.Status != "TRADING" {
		return types.SymbolFilters{}, fmt.Errorf("%w: %s status %s", exchange.ErrSymbolInactive, symbol, sym.Status)
	}

	filters := types.SymbolFilters{
		Symbol:    symbol,
		FetchedAt: time.Now(),
	}
	for _, f := range sym.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			filters.TickSize = mustDecimal(f.TickSize)
		case "LOT_SIZE":
			filters.StepSize = mustDecimal(f.StepSize)
			filters.MinQty = mustDecimal(f.MinQty)
		case "NOTIONAL", "MIN_NOTIONAL":
			filters.MinNotional = mustDecimal(f.MinNotional)
		case "PERCENT_PRICE_BY_SIDE":
			filters.MultiplierUp = mustDecimal(f.BidMultiplierUp)
			filters.MultiplierDown = mustDecimal(f.BidMultiplierDown)
		case "PERCENT_PRICE":
			filters.MultiplierUp = mustDecimal(f.MultiplierUp)
			filters.MultiplierDown = mustDecimal(f.MultiplierDown)
		}
	}
	return filters, nil
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Balance returns the free balance of one asset.
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return mustDecimal(b.Free), nil
		}
	}
	return decimal.Zero, nil
}

// CanTrade reports whether the account has spot trading permission.
func (c *Client) CanTrade(ctx context.Context) (bool, error) {
	acct, err := c.account(ctx)
	if err != nil {
		return false, err
	}
	return acct.CanTrade, nil
}

type accountResponse struct {
	CanTrade bool `json:"canTrade"`
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

func (c *Client) account(ctx context.Context) (*accountResponse, error) {
	var resp accountResponse
	if err := c.call(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	CumQuoteQty   string `json:"cummulativeQuoteQty"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

func (c *Client) toRecord(r orderResponse) types.OrderRecord {
	rec := types.OrderRecord{
		OrderID:        strconv.FormatInt(r.OrderID, 10),
		ClientOrderID:  r.ClientOrderID,
		Symbol:         r.Symbol,
		Side:           types.SideBuy,
		RequestedQty:   mustDecimal(r.OrigQty),
		RequestedPrice: mustDecimal(r.Price),
		FilledQty:      mustDecimal(r.ExecutedQty),
		CumQuote:       mustDecimal(r.CumQuoteQty),
		Status:         types.ParseOrderStatus(r.Status),
		CreatedAt:      time.UnixMilli(r.Time),
		UpdatedAt:      time.UnixMilli(r.UpdateTime),
	}
	if r.Side == "SELL" {
		rec.Side = types.SideSell
	}
	if rec.FilledQty.IsPositive() {
		rec.AvgFillPrice = rec.CumQuote.Div(rec.FilledQty)
	}
	return rec
}

// PlaceLimitOrder submits a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (types.OrderRecord, error) {
	params := url.Values{
		"symbol":           {intent.Symbol},
		"side":             {intent.Side.String()},
		"type":             {"LIMIT"},
		"timeInForce":      {"GTC"},
		"quantity":         {intent.Qty.String()},
		"price":            {intent.LimitPrice.String()},
		"newClientOrderId": {intent.ClientOrderID},
		"newOrderRespType": {"RESULT"},
	}

	var resp orderResponse
	if err := c.call(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return types.OrderRecord{}, err
	}

	c.logger.Info("order placed",
		"order_id", resp.OrderID,
		"client_order_id", intent.ClientOrderID,
		"symbol", intent.Symbol,
		"side", intent.Side.String(),
		"qty", intent.Qty,
		"price", intent.LimitPrice,
	)
	return c.toRecord(resp), nil
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error) {
	params := url.Values{
		"symbol":  {symbol},
		"orderId": {orderID},
	}

	var resp orderResponse
	if err := c.call(ctx, http.MethodGet, "/api/v3/order", params, true, &resp); err != nil {
		return types.OrderRecord{}, err
	}
	return c.toRecord(resp), nil
}

// CancelOrder cancels an order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (types.OrderRecord, error) {
	params := url.Values{
		"symbol":  {symbol},
		"orderId": {orderID},
	}

	var resp orderResponse
	if err := c.call(ctx, http.MethodDelete, "/api/v3/order", params, true, &resp); err != nil {
		return types.OrderRecord{}, err
	}

	c.logger.Info("order canceled",
		"order_id", orderID,
		"filled_qty", resp.ExecutedQty,
	)
	return c.toRecord(resp), nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure Client implements exchange.Exchange
var _ exchange.Exchange = (*Client)(nil)
