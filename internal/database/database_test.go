package database

import (
	"testing"

	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	db, err := NewDatabase(&config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	for _, table := range []interface{}{
		&models.Trade{}, &models.StrategyConfig{}, &models.PriceSample{}, &models.ExchangeCredential{},
	} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.Database{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
