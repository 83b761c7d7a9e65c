package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"binance-signal-trader/internal/repository"
	"binance-signal-trader/internal/trader"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// OwnerHeader carries the authenticated owner id.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner_id"

// RequireOwner rejects requests without an owner id.
func RequireOwner(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			owner := strings.TrimSpace(c.Request().Header.Get(OwnerHeader))
			if owner == "" {
				logger.Warn("Owner header missing",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+OwnerHeader)
			}
			c.Set(ownerKey, owner)
			return next(c)
		}
	}
}

func ownerOf(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

// WithErrorHandler turns handler errors into JSON responses.
func WithErrorHandler(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			code := statusFor(err)
			msg := err.Error()
			var he *echo.HTTPError
			if errors.As(err, &he) {
				msg = fmt.Sprint(he.Message)
			}
			if code >= http.StatusInternalServerError {
				logger.Error("Request failed",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Path()),
					zap.Error(err))
			}
			return c.JSON(code, map[string]interface{}{
				"code":    code,
				"message": msg,
			})
		}
	}
}

func statusFor(err error) int {
	var he *echo.HTTPError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &ve),
		errors.Is(err, trader.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, trader.ErrCredentialsNotFound),
		errors.Is(err, trader.ErrCredentialsRejected):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trader.ErrInvalidStateForEdit),
		errors.Is(err, trader.ErrInvalidTransition),
		errors.Is(err, repository.ErrStaleTrade):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
