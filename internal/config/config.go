package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance   Binance   `mapstructure:"binance"`
	Trading   Trading   `mapstructure:"trading"`
	Scanner   Scanner   `mapstructure:"scanner"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Rules     Rules     `mapstructure:"rules"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
// Credentials are per owner and come from the credential store, not from here.
type Binance struct {
	BaseURL        string        `mapstructure:"base_url"`
	Testnet        bool          `mapstructure:"testnet"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RecvWindow     int           `mapstructure:"recv_window"`
	DryRun         bool          `mapstructure:"dry_run"`
}

// Trading holds the configuration for the trade lifecycle.
type Trading struct {
	QuoteAsset         string  `mapstructure:"quote_asset"`
	FeeRate            float64 `mapstructure:"fee_rate"`
	BuyConfidence      float64 `mapstructure:"buy_confidence"`
	SignalSource       string  `mapstructure:"signal_source"`
	SignalInterval     string  `mapstructure:"signal_interval"`
	SignalHistory      int     `mapstructure:"signal_history"`
	DefaultQuoteAmount float64 `mapstructure:"default_quote_amount"`
	DefaultTakeProfit  float64 `mapstructure:"default_take_profit"`
}

// Scanner holds the configuration for the top gainers candidate scan.
type Scanner struct {
	Strategy         string  `mapstructure:"strategy"`
	TopN             int     `mapstructure:"top_n"`
	MinQuoteVolume   float64 `mapstructure:"min_quote_volume"`
	RSICeiling       float64 `mapstructure:"rsi_ceiling"`
	BreakoutLookback int     `mapstructure:"breakout_lookback"`
	VolumeMultiplier float64 `mapstructure:"volume_multiplier"`
}

// Scheduler holds the cron expressions and worker pool size.
type Scheduler struct {
	ScanCron   string        `mapstructure:"scan_cron"`
	SweepCron  string        `mapstructure:"sweep_cron"`
	Workers    int           `mapstructure:"workers"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// Rules holds the exchange symbol rule cache settings.
type Rules struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rate_limit", 20) // requests per second
	v.SetDefault("binance.rate_limit_burst", 5)
	v.SetDefault("binance.timeout", 10*time.Second)
	v.SetDefault("binance.recv_window", 5000)

	v.SetDefault("trading.quote_asset", "USDT")
	v.SetDefault("trading.fee_rate", 0.001)
	v.SetDefault("trading.buy_confidence", 70)
	v.SetDefault("trading.signal_source", "native")
	v.SetDefault("trading.signal_interval", "1h")
	v.SetDefault("trading.signal_history", 100)
	v.SetDefault("trading.default_quote_amount", 20)
	v.SetDefault("trading.default_take_profit", 2)

	v.SetDefault("scanner.strategy", "pump_five_pairs")
	v.SetDefault("scanner.top_n", 5)
	v.SetDefault("scanner.min_quote_volume", 10_000_000)
	v.SetDefault("scanner.rsi_ceiling", 70)
	v.SetDefault("scanner.breakout_lookback", 20)
	v.SetDefault("scanner.volume_multiplier", 1.5)

	v.SetDefault("scheduler.scan_cron", "*/15 * * * *")
	v.SetDefault("scheduler.sweep_cron", "* * * * *")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.run_timeout", 5*time.Minute)

	v.SetDefault("rules.cache_ttl", 5*time.Minute)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "trader.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
