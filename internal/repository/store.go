package repository

import (
	"context"
	"errors"
	"fmt"

	"binance-signal-trader/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StrategyConfigRepo stores per owner strategy defaults.
type StrategyConfigRepo struct {
	db *gorm.DB
}

func NewStrategyConfigRepo(db *gorm.DB) *StrategyConfigRepo {
	return &StrategyConfigRepo{db: db}
}

// Upsert inserts or replaces the config for (owner, strategy).
func (r *StrategyConfigRepo) Upsert(ctx context.Context, cfg *models.StrategyConfig) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}, {Name: "strategy"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quote_amount", "take_profit_percentage", "dip_percentage", "lookback_minutes", "updated_at",
		}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %s config: %w", cfg.Strategy, err)
	}
	return nil
}

// Get returns the owner's config for strategy.
func (r *StrategyConfigRepo) Get(ctx context.Context, owner string, strategy models.StrategyKind) (*models.StrategyConfig, error) {
	var cfg models.StrategyConfig
	err := r.db.WithContext(ctx).Where("owner_id = ? AND strategy = ?", owner, strategy).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s config: %w", strategy, err)
	}
	return &cfg, nil
}

// ListByStrategy returns every owner's config for strategy.
func (r *StrategyConfigRepo) ListByStrategy(ctx context.Context, strategy models.StrategyKind) ([]models.StrategyConfig, error) {
	var cfgs []models.StrategyConfig
	if err := r.db.WithContext(ctx).Where("strategy = ?", strategy).Order("owner_id").Find(&cfgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s configs: %w", strategy, err)
	}
	return cfgs, nil
}

// PriceRepo reads the price history written by the ingestion jobs.
type PriceRepo struct {
	db *gorm.DB
}

func NewPriceRepo(db *gorm.DB) *PriceRepo {
	return &PriceRepo{db: db}
}

// Query returns up to limit samples of symbol at interval, newest first.
func (r *PriceRepo) Query(ctx context.Context, symbol, interval string, limit int) ([]models.PriceSample, error) {
	var samples []models.PriceSample
	err := r.db.WithContext(ctx).
		Where(&models.PriceSample{Symbol: symbol, Interval: interval}).
		Order("open_time DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s %s prices: %w", symbol, interval, err)
	}
	return samples, nil
}

// CredentialRepo reads owner API keys.
type CredentialRepo struct {
	db *gorm.DB
}

func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Get returns the owner's credentials or ErrNotFound.
func (r *CredentialRepo) Get(ctx context.Context, owner string) (*models.ExchangeCredential, error) {
	var cred models.ExchangeCredential
	err := r.db.WithContext(ctx).Where("owner_id = ?", owner).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &cred, nil
}
