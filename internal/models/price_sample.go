package models

import "time"

// PriceSample is one OHLCV candle written by the ingestion job.
type PriceSample struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Symbol   string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_symbol_interval_open" json:"symbol"`
	Interval string    `gorm:"type:varchar(8);not null;uniqueIndex:idx_symbol_interval_open" json:"interval"`
	OpenTime time.Time `gorm:"not null;uniqueIndex:idx_symbol_interval_open" json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

func (PriceSample) TableName() string {
	return "price_samples"
}
