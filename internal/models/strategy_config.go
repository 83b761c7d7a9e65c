package models

import "time"

// StrategyConfig holds an owner's sizing defaults for one strategy.
type StrategyConfig struct {
	ID                   uint         `gorm:"primaryKey" json:"id"`
	OwnerID              string       `gorm:"type:varchar(64);not null;uniqueIndex:idx_owner_strategy" json:"owner_id"`
	Strategy             StrategyKind `gorm:"type:varchar(32);not null;uniqueIndex:idx_owner_strategy" json:"strategy"`
	QuoteAmount          float64      `gorm:"not null" json:"quote_amount"`
	TakeProfitPercentage float64      `gorm:"not null" json:"take_profit_percentage"`
	DipPercentage        *float64     `json:"dip_percentage,omitempty"`
	LookbackMinutes      *int         `json:"lookback_minutes,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (StrategyConfig) TableName() string {
	return "strategy_configs"
}
