package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"binance-signal-trader/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL          = "https://api.binance.com/api/v3"
	testnetBaseURL   = "https://testnet.binance.vision/api/v3"
	defaultTimeout   = 10 * time.Second
	OrderTypeMarket  = "MARKET"
	OrderSideBuy     = "BUY"
	OrderSideSell    = "SELL"
	maxPublicRetries = 3
)

// MarketData is the unsigned part of the exchange API.
type MarketData interface {
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	Get24hTickers(ctx context.Context) ([]Ticker24h, error)
	GetExchangeInfo(ctx context.Context, symbols ...string) (*ExchangeInfoResponse, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// AccountClient is the signed part of the exchange API, bound to one owner.
type AccountClient interface {
	GetFreeBalance(ctx context.Context, asset string) (float64, error)
	CreateMarketOrder(ctx context.Context, order OrderRequest) (*CreateOrderResponse, error)
}

// RestClientInterface defines the interface for the Binance REST API client.
type RestClientInterface interface {
	MarketData
	GetServerTime(ctx context.Context) (int64, error)
	Account(creds Credentials) AccountClient
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface. Every owner's signed client shares
// its HTTP client and rate limiter.
type RestClient struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	recvWindow string
	dryRun     bool
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	endpoint := cfg.BaseURL
	switch {
	case endpoint != "":
		logger.Info("Using custom Binance endpoint", zap.String("url", endpoint))
	case cfg.Testnet:
		endpoint = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	default:
		endpoint = baseURL
		logger.Info("Using Binance Production API")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().SetBaseURL(endpoint).SetTimeout(timeout)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}

	if cfg.DryRun {
		logger.Warn("Dry run enabled. Orders are simulated at the ticker price.")
	}

	return &RestClient{
		client:     client,
		logger:     logger.Named("binance"),
		limiter:    limiter,
		recvWindow: strconv.Itoa(recvWindow),
		dryRun:     cfg.DryRun,
	}
}

// sign creates a HMAC-SHA256 signature of data with the owner's secret.
func sign(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the request execution with rate limiting. Only idempotent
// public calls pass retry; signed calls are sent once so a slow order is never
// submitted twice.
func (c *RestClient) doRequest(ctx context.Context, method, path string, req *resty.Request, retry bool) (*resty.Response, error) {
	attempts := 1
	if retry {
		attempts = maxPublicRetries
	}
	req.SetContext(ctx).SetError(&APIError{})
	endpoint, _, _ := strings.Cut(path, "?")

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", endpoint))
		resp, err := req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		var retryAfter time.Duration
		if err != nil {
			lastErr = &TransportError{Err: err}
		} else {
			lastErr = newAPIError(resp)
			if !lastErr.(*APIError).Transient() {
				return nil, lastErr
			}
			if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}

		if i == attempts-1 || ctx.Err() != nil {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", endpoint),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, &TransportError{Err: ctx.Err()}
		}
	}

	if attempts > 1 {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
	}
	return nil, lastErr
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&ServerTimeResponse{})
	resp, err := c.doRequest(ctx, http.MethodGet, "/time", req, true)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	return resp.Result().(*ServerTimeResponse).ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice fetches the latest price of one symbol.
func (c *RestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req, true)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	ticker := resp.Result().(*TickerPrice)
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q for %s: %w", ticker.Price, symbol, err)
	}
	return price, nil
}

// Ticker24h is the rolling 24 hour statistics of one symbol.
type Ticker24h struct {
	Symbol             string
	PriceChangePercent float64
	LastPrice          float64
	QuoteVolume        float64
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
}

// Get24hTickers fetches 24 hour statistics for every symbol.
func (c *RestClient) Get24hTickers(ctx context.Context) ([]Ticker24h, error) {
	var raw []ticker24hResponse
	req := c.client.R().SetResult(&raw)

	resp, err := c.doRequest(ctx, http.MethodGet, "/ticker/24hr", req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get 24h tickers: %w", err)
	}

	result := *resp.Result().(*[]ticker24hResponse)
	tickers := make([]Ticker24h, 0, len(result))
	for _, r := range result {
		change, err1 := strconv.ParseFloat(r.PriceChangePercent, 64)
		last, err2 := strconv.ParseFloat(r.LastPrice, 64)
		volume, err3 := strconv.ParseFloat(r.QuoteVolume, 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			c.logger.Debug("Skipping unparsable 24h ticker", zap.String("symbol", r.Symbol), zap.Error(err))
			continue
		}
		tickers = append(tickers, Ticker24h{
			Symbol:             r.Symbol,
			PriceChangePercent: change,
			LastPrice:          last,
			QuoteVolume:        volume,
		})
	}
	return tickers, nil
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol     string   `json:"symbol"`
	Status     string   `json:"status"`
	BaseAsset  string   `json:"baseAsset"`
	QuoteAsset string   `json:"quoteAsset"`
	Filters    []Filter `json:"filters"`
}

// Filter represents a single filter for a symbol. LOT_SIZE carries the
// step size and minimum quantity, MIN_NOTIONAL or NOTIONAL the minimum value.
type Filter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty,omitempty"`
	MaxQty      string `json:"maxQty,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
}

// GetExchangeInfo fetches exchange trading rules, optionally for a subset of symbols.
func (c *RestClient) GetExchangeInfo(ctx context.Context, symbols ...string) (*ExchangeInfoResponse, error) {
	req := c.client.R().SetResult(&ExchangeInfoResponse{})
	switch len(symbols) {
	case 0:
	case 1:
		req.SetQueryParam("symbol", symbols[0])
	default:
		req.SetQueryParam("symbols", `["`+strings.Join(symbols, `","`)+`"]`)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/exchangeInfo", req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	return resp.Result().(*ExchangeInfoResponse), nil
}

// Kline is one candle as returned by /klines.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// GetKlines fetches the latest candles of a symbol, oldest first.
func (c *RestClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]interface{}
	req := c.client.R().
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&raw)

	resp, err := c.doRequest(ctx, http.MethodGet, "/klines", req, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s klines for %s: %w", interval, symbol, err)
	}

	rows := *resp.Result().(*[][]interface{})
	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline for %s: %w", symbol, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKline(row []interface{}) (Kline, error) {
	if len(row) < 6 {
		return Kline{}, fmt.Errorf("kline has %d fields", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return Kline{}, fmt.Errorf("unexpected open time %v", row[0])
	}

	var values [5]float64
	for i := range values {
		s, ok := row[i+1].(string)
		if !ok {
			return Kline{}, fmt.Errorf("unexpected field %v", row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Kline{}, err
		}
		values[i] = v
	}

	return Kline{
		OpenTime: time.UnixMilli(int64(openTime)).UTC(),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

// Account binds the client to one owner's credentials.
func (c *RestClient) Account(creds Credentials) AccountClient {
	if c.dryRun {
		return NewPaperAccount(c, c.logger.Named("paper"))
	}
	return &SignedClient{rest: c, creds: creds}
}

// newClientOrderID returns a unique, time ordered client order id.
func newClientOrderID() string {
	return "sst-" + ulid.Make().String()
}

// encodeSigned appends timestamp, recvWindow and signature to params.
func (c *RestClient) encodeSigned(params url.Values, secret string) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", c.recvWindow)
	query := params.Encode()
	return query + "&signature=" + sign(secret, query)
}
