// Package repository persists trades, strategy configs, price samples and
// credentials through gorm.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binance-signal-trader/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no row matches, including rows owned by someone else.
	ErrNotFound = errors.New("record not found")
	// ErrStaleTrade is returned when a conditional write lost to another writer.
	ErrStaleTrade = errors.New("trade was modified concurrently")
)

// TradeRepo stores trades. Every write after creation is conditional on the
// status and version the caller last read.
type TradeRepo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTradeRepo returns a trade repository over db.
func NewTradeRepo(db *gorm.DB) *TradeRepo {
	return &TradeRepo{db: db, now: time.Now}
}

// Create inserts a new trade.
func (r *TradeRepo) Create(ctx context.Context, t *models.Trade) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// Get loads a trade owned by owner.
func (r *TradeRepo) Get(ctx context.Context, owner string, id uint) (*models.Trade, error) {
	var t models.Trade
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %d: %w", id, err)
	}
	return &t, nil
}

// ListOpen returns every trade in a non-terminal status, oldest first.
func (r *TradeRepo) ListOpen(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("status IN ?", models.OpenStatuses).
		Order("id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return trades, nil
}

// ListByOwner returns an owner's trades, newest first. An empty status list
// returns every status.
func (r *TradeRepo) ListByOwner(ctx context.Context, owner string, statuses ...models.Status) ([]models.Trade, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", owner)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var trades []models.Trade
	if err := q.Order("id DESC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades for owner: %w", err)
	}
	return trades, nil
}

// HasOpen reports whether owner already holds a non-terminal trade on pair
// under strategy.
func (r *TradeRepo) HasOpen(ctx context.Context, owner, pair string, strategy models.StrategyKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("owner_id = ? AND pair = ? AND strategy = ? AND status IN ?", owner, pair, strategy, models.OpenStatuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open trades on %s: %w", pair, err)
	}
	return count > 0, nil
}

// Claim bumps the version of t if it still has the status and version that
// were read. On success t.Version is advanced; on a lost race ErrStaleTrade
// is returned and nothing changes.
func (r *TradeRepo) Claim(ctx context.Context, t *models.Trade) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status = ? AND version = ?", t.ID, t.Status, t.Version).
		Updates(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim trade %d: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleTrade
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

// Update writes every mutable column of t, provided the row still has the
// expected status and t.Version. The version is advanced on success.
func (r *TradeRepo) Update(ctx context.Context, t *models.Trade, expected models.Status) error {
	now := r.now()
	cols := tradeColumns(t)
	cols["version"] = gorm.Expr("version + 1")
	cols["updated_at"] = now

	res := r.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status = ? AND version = ?", t.ID, expected, t.Version).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update trade %d: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleTrade
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

// Delete hard deletes a trade, conditional on the version the caller read.
func (r *TradeRepo) Delete(ctx context.Context, t *models.Trade) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND version = ?", t.ID, t.OwnerID, t.Version).
		Delete(&models.Trade{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete trade %d: %w", t.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleTrade
	}
	return nil
}

// tradeColumns maps the mutable fields; nil pointers become NULL.
func tradeColumns(t *models.Trade) map[string]interface{} {
	return map[string]interface{}{
		"quote_amount":           t.QuoteAmount,
		"asset_amount":           t.AssetAmount,
		"take_profit_percentage": t.TakeProfitPercentage,
		"purchase_price":         t.PurchasePrice,
		"target_price":           t.TargetPrice,
		"sell_price":             t.SellPrice,
		"profit_loss":            t.ProfitLoss,
		"dip_percentage":         t.DipPercentage,
		"lookback_minutes":       t.LookbackMinutes,
		"status":                 t.Status,
		"message":                t.Message,
		"entry_rationale":        t.EntryRationale,
		"buy_order_id":           t.BuyOrderID,
		"sell_order_id":          t.SellOrderID,
		"completed_at":           t.CompletedAt,
	}
}
