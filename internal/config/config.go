package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Logger    Logger    `mapstructure:"logger"`
	Market    Market    `mapstructure:"market"`
	Challenge Challenge `mapstructure:"challenge"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Market holds the configuration for the quote provider.
type Market struct {
	// BasePrices maps domestic tickers to their synthetic base price.
	// Any ticker not in this map is looked up on the external market.
	BasePrices map[string]float64 `mapstructure:"base_prices"`
	// PriceVolatility is the absolute offset applied around a base price.
	PriceVolatility float64 `mapstructure:"price_volatility"`
	// ChangeBand is the percent-change band for synthetic quotes.
	ChangeBand       float64       `mapstructure:"change_band"`
	DomesticCurrency string        `mapstructure:"domestic_currency"`
	ForeignCurrency  string        `mapstructure:"foreign_currency"`
	QuoteTimeout     time.Duration `mapstructure:"quote_timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
}

// Challenge holds the configuration for the challenge rules.
type Challenge struct {
	StartBalance float64 `mapstructure:"start_balance"`
	// Drawdown is the fractional loss from the start balance that fails a
	// challenge; ProfitTarget is the fractional gain that passes it.
	Drawdown     float64 `mapstructure:"drawdown"`
	ProfitTarget float64 `mapstructure:"profit_target"`
	// MaxTradeReturn bounds the simulated per-trade return on the requested
	// notional amount.
	MaxTradeReturn float64 `mapstructure:"max_trade_return"`
	AccountName    string  `mapstructure:"account_name"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("database.dsn", "tradesense.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("market.base_prices", map[string]float64{"IAM": 92.50, "ATW": 480.00})
	viper.SetDefault("market.price_volatility", 0.5)
	viper.SetDefault("market.change_band", 1.0)
	viper.SetDefault("market.domestic_currency", "MAD")
	viper.SetDefault("market.foreign_currency", "$")
	viper.SetDefault("market.quote_timeout", "10s")
	viper.SetDefault("market.rate_limit", 5)
	viper.SetDefault("market.rate_limit_burst", 2)
	viper.SetDefault("challenge.start_balance", 100000)
	viper.SetDefault("challenge.drawdown", 0.10)
	viper.SetDefault("challenge.profit_target", 0.10)
	viper.SetDefault("challenge.max_trade_return", 0.05)
	viper.SetDefault("challenge.account_name", "Trader1")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Viper lowercases map keys; tickers are matched upper-case.
	prices := make(map[string]float64, len(config.Market.BasePrices))
	for ticker, base := range config.Market.BasePrices {
		prices[strings.ToUpper(ticker)] = base
	}
	config.Market.BasePrices = prices
	return
}
