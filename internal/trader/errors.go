package trader

import (
	"errors"
	"fmt"
	"net/http"

	"binance-signal-trader/internal/binance"
)

var (
	ErrCredentialsNotFound = errors.New("exchange credentials not found")
	ErrCredentialsRejected = errors.New("exchange rejected the credentials")
	ErrInvalidStateForEdit = errors.New("trade cannot be edited in its current state")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidRequest      = errors.New("invalid request")
)

// PartialSuccessError means an order executed on the exchange but the trade
// record could not be updated to reflect it.
type PartialSuccessError struct {
	TradeID uint
	Side    string
	OrderID string
	Err     error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("trade %d: %s order %s executed but the trade was not updated: %v",
		e.TradeID, e.Side, e.OrderID, e.Err)
}

func (e *PartialSuccessError) Unwrap() error { return e.Err }

// fillError means the exchange accepted an order but its response did not
// say how much executed.
type fillError struct {
	orderID string
	err     error
}

func (e *fillError) Error() string {
	return fmt.Sprintf("order %s executed but its fill could not be read: %v", e.orderID, e.err)
}

func (e *fillError) Unwrap() error { return e.err }

// exchangeMessage returns the exchange's own message when there is one.
func exchangeMessage(err error) string {
	var apiErr *binance.APIError
	if errors.As(err, &apiErr) && apiErr.Msg != "" {
		return apiErr.Msg
	}
	return err.Error()
}

// isAuthError reports whether the exchange refused the API key itself.
func isAuthError(err error) bool {
	if errors.Is(err, binance.ErrMissingCredentials) {
		return true
	}
	var apiErr *binance.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case -2014, -2015, -1022:
		return true
	}
	return apiErr.StatusCode == http.StatusUnauthorized
}
