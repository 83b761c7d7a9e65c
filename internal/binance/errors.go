package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// APIError is an error payload returned by the exchange.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("binance: http %d", e.StatusCode)
	}
	return fmt.Sprintf("binance: %s (code %d, http %d)", e.Msg, e.Code, e.StatusCode)
}

// Transient reports whether retrying later may succeed.
func (e *APIError) Transient() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == 418:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{}
	if e, ok := resp.Error().(*APIError); ok && e != nil {
		*apiErr = *e
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}

// TransportError wraps failures where no response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "binance transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a network failure, timeout, rate limit
// or server side error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
