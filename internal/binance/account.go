package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"binance-signal-trader/internal/logger"
	"go.uber.org/zap"
)

// ErrMissingCredentials is returned when an owner has no usable key pair.
var ErrMissingCredentials = errors.New("binance: missing api credentials")

// Credentials is an owner's API key pair. It redacts itself when formatted
// so it can never leak through a log line or error message.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != ""
}

func (c Credentials) String() string {
	return "Credentials{APIKey:" + logger.Mask(c.APIKey) + ", APISecret:[REDACTED]}"
}

// GoString covers the %#v verb.
func (c Credentials) GoString() string { return c.String() }

// OrderRequest describes a market order. Exactly one of Quantity (base asset)
// or QuoteOrderQty (quote asset) is set, both as exchange formatted decimals.
type OrderRequest struct {
	Symbol        string
	Side          string
	Quantity      string
	QuoteOrderQty string
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// Executed returns the filled base quantity and the quote spent or received.
func (r *CreateOrderResponse) Executed() (qty, quote float64, err error) {
	qty, err = strconv.ParseFloat(r.ExecutedQuantity, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse executed quantity %q: %w", r.ExecutedQuantity, err)
	}
	quote, err = strconv.ParseFloat(r.CummulativeQuoteQty, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse cumulative quote %q: %w", r.CummulativeQuoteQty, err)
	}
	return qty, quote, nil
}

// AveragePrice is the volume weighted fill price.
func (r *CreateOrderResponse) AveragePrice() (float64, error) {
	qty, quote, err := r.Executed()
	if err != nil {
		return 0, err
	}
	if qty <= 0 {
		return 0, fmt.Errorf("order %d executed no quantity", r.OrderID)
	}
	return quote / qty, nil
}

// OrderRef is the identifier stored on a trade.
func (r *CreateOrderResponse) OrderRef() string {
	if r.OrderID != 0 {
		return strconv.FormatInt(r.OrderID, 10)
	}
	return r.ClientOrderID
}

// SignedClient performs signed calls for one owner.
type SignedClient struct {
	rest  *RestClient
	creds Credentials
}

var _ AccountClient = (*SignedClient)(nil)

func (s *SignedClient) signedRequest(ctx context.Context, method, path string, params url.Values, result interface{}) error {
	if !s.creds.Valid() {
		return ErrMissingCredentials
	}

	query := s.rest.encodeSigned(params, s.creds.APISecret)
	req := s.rest.client.R().
		SetHeader("X-MBX-APIKEY", s.creds.APIKey).
		SetResult(result)

	// The query goes into the URL verbatim so the signed parameter order survives.
	target := path
	if method == http.MethodGet {
		target = path + "?" + query
	} else {
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded").SetBody(query)
	}

	_, err := s.rest.doRequest(ctx, method, target, req, false)
	return err
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// GetFreeBalance returns the free amount of asset on the account.
func (s *SignedClient) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	account := &accountResponse{}
	if err := s.signedRequest(ctx, http.MethodGet, "/account", url.Values{}, account); err != nil {
		return 0, fmt.Errorf("failed to get account balance: %w", err)
	}

	for _, b := range account.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse free balance %q for %s: %w", b.Free, asset, err)
		}
		return free, nil
	}
	return 0, nil
}

// CreateMarketOrder places a MARKET order. It is never retried.
func (s *SignedClient) CreateMarketOrder(ctx context.Context, order OrderRequest) (*CreateOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side)
	params.Set("type", OrderTypeMarket)
	params.Set("newClientOrderId", newClientOrderID())
	params.Set("newOrderRespType", "RESULT")
	switch {
	case order.QuoteOrderQty != "":
		params.Set("quoteOrderQty", order.QuoteOrderQty)
	case order.Quantity != "":
		params.Set("quantity", order.Quantity)
	default:
		return nil, fmt.Errorf("order for %s has neither quantity nor quote quantity", order.Symbol)
	}

	s.rest.logger.Info("Placing market order",
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.String("quantity", order.Quantity),
		zap.String("quote_quantity", order.QuoteOrderQty),
		logger.Secret("api_key", s.creds.APIKey),
	)

	resp := &CreateOrderResponse{}
	if err := s.signedRequest(ctx, http.MethodPost, "/order", params, resp); err != nil {
		return nil, fmt.Errorf("failed to create %s order for %s: %w", order.Side, order.Symbol, err)
	}
	return resp, nil
}
