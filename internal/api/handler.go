package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"binance-signal-trader/internal/models"
	"binance-signal-trader/internal/scheduler"
	"binance-signal-trader/internal/trader"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TradeService is the set of owner operations.
type TradeService interface {
	InitiateTrade(ctx context.Context, owner string, req trader.InitiateRequest) (*trader.InitiateResult, error)
	CloseTrade(ctx context.Context, owner string, id uint) (*trader.CloseResult, error)
	DeleteTrade(ctx context.Context, owner string, id uint) (*trader.DeleteResult, error)
	EditTrade(ctx context.Context, owner string, id uint, req trader.EditRequest) (*models.Trade, error)
	ListTrades(ctx context.Context, owner string, statuses ...models.Status) ([]models.Trade, error)
	UpsertStrategyConfig(ctx context.Context, owner string, strategy models.StrategyKind, req trader.StrategyConfigRequest) (*models.StrategyConfig, error)
	Statistics(ctx context.Context, owner string) (*trader.Statistics, error)
}

// CandidateScanner runs the top gainer scan.
type CandidateScanner interface {
	EvaluateCandidates(ctx context.Context) (*scheduler.ScanReport, error)
}

// BulkInitiator opens trades for selected candidates.
type BulkInitiator interface {
	BulkInitiate(ctx context.Context, owner string, selections []scheduler.Selection) ([]scheduler.CandidateResult, error)
}

// LifecycleSweeper runs one lifecycle sweep.
type LifecycleSweeper interface {
	SweepLifecycle(ctx context.Context) (*scheduler.SweepReport, error)
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	logger  *zap.Logger
	trades  TradeService
	scanner CandidateScanner
	bulk    BulkInitiator
	sweeper LifecycleSweeper
}

// NewHandler creates a new Handler.
func NewHandler(logger *zap.Logger, trades TradeService, scanner CandidateScanner, bulk BulkInitiator, sweeper LifecycleSweeper) *Handler {
	return &Handler{
		logger:  logger.Named("handler"),
		trades:  trades,
		scanner: scanner,
		bulk:    bulk,
		sweeper: sweeper,
	}
}

// RegisterRoutes mounts the endpoints. Owner scoped routes go through owner.
func (h *Handler) RegisterRoutes(e *echo.Echo, owner echo.MiddlewareFunc) {
	e.POST("/api/candidates/evaluate", h.EvaluateCandidates)
	e.POST("/api/lifecycle/sweep", h.SweepLifecycle)

	g := e.Group("/api", owner)
	g.POST("/candidates/initiate", h.BulkInitiate)
	g.GET("/trades", h.ListTrades)
	g.POST("/trades", h.InitiateTrade)
	g.PATCH("/trades/:id", h.EditTrade)
	g.DELETE("/trades/:id", h.DeleteTrade)
	g.POST("/trades/:id/close", h.CloseTrade)
	g.PUT("/strategies/:strategy", h.UpsertStrategyConfig)
	g.GET("/statistics", h.Statistics)
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func tradeID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid trade id")
	}
	return uint(id), nil
}

// InitiateTrade opens a trade.
// POST /api/trades
func (h *Handler) InitiateTrade(c echo.Context) error {
	var req trader.InitiateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.trades.InitiateTrade(c.Request().Context(), ownerOf(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// ListTrades returns the owner's trades, optionally filtered with
// ?status=active,pending.
// GET /api/trades
func (h *Handler) ListTrades(c echo.Context) error {
	var statuses []models.Status
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.Status(s))
			}
		}
	}
	trades, err := h.trades.ListTrades(c.Request().Context(), ownerOf(c), statuses...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trades)
}

// EditTrade changes the editable fields of a trade.
// PATCH /api/trades/:id
func (h *Handler) EditTrade(c echo.Context) error {
	id, err := tradeID(c)
	if err != nil {
		return err
	}
	var req trader.EditRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	t, err := h.trades.EditTrade(c.Request().Context(), ownerOf(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"updated": true, "trade": t})
}

// CloseTrade sells and completes a trade.
// POST /api/trades/:id/close
func (h *Handler) CloseTrade(c echo.Context) error {
	id, err := tradeID(c)
	if err != nil {
		return err
	}
	res, err := h.trades.CloseTrade(c.Request().Context(), ownerOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// DeleteTrade sells and removes a trade.
// DELETE /api/trades/:id
func (h *Handler) DeleteTrade(c echo.Context) error {
	id, err := tradeID(c)
	if err != nil {
		return err
	}
	res, err := h.trades.DeleteTrade(c.Request().Context(), ownerOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// UpsertStrategyConfig stores the owner's defaults for a strategy.
// PUT /api/strategies/:strategy
func (h *Handler) UpsertStrategyConfig(c echo.Context) error {
	var req trader.StrategyConfigRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	strategy := models.StrategyKind(c.Param("strategy"))
	cfg, err := h.trades.UpsertStrategyConfig(c.Request().Context(), ownerOf(c), strategy, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

// Statistics returns the owner's realised results.
// GET /api/statistics
func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.trades.Statistics(c.Request().Context(), ownerOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// EvaluateCandidates runs a top gainer scan now.
// POST /api/candidates/evaluate
func (h *Handler) EvaluateCandidates(c echo.Context) error {
	report, err := h.scanner.EvaluateCandidates(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type bulkRequest struct {
	Selections []scheduler.Selection `json:"selections" validate:"required,min=1,max=20,dive"`
}

// BulkInitiate opens trades for the selected candidates.
// POST /api/candidates/initiate
func (h *Handler) BulkInitiate(c echo.Context) error {
	var req bulkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	results, err := h.bulk.BulkInitiate(c.Request().Context(), ownerOf(c), req.Selections)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": results})
}

// SweepLifecycle runs one sweep over every open trade now.
// POST /api/lifecycle/sweep
func (h *Handler) SweepLifecycle(c echo.Context) error {
	report, err := h.sweeper.SweepLifecycle(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
