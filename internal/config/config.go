package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	ServerAddr        string        `env:"RUN_ADDRESS"`
	LogLevel          string        `env:"LOG_LEVEL"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	JWTSecretKey      string        `env:"JWT_SECRET_KEY"`
	WithdrawalMin     float64       `env:"WITHDRAWAL_MIN_AMOUNT"`
	WithdrawalMax     float64       `env:"WITHDRAWAL_MAX_AMOUNT"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT"`
	ReconcileInterval time.Duration `env:"RECONCILE_POLL_INTERVAL"`
	DispatchStaleAge  time.Duration `env:"DISPATCH_STALE_AGE"`
	NotifyWebhookURL  string        `env:"NOTIFY_WEBHOOK_URL"`

	PayPal  PayPalConfig
	Binance BinanceConfig
	Epay    EpayConfig
}

type PayPalConfig struct {
	BaseURL      string `env:"PAYPAL_BASE_URL"`
	ClientID     string `env:"PAYPAL_CLIENT_ID"`
	ClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
}

type BinanceConfig struct {
	BaseURL   string `env:"BINANCE_BASE_URL"`
	APIKey    string `env:"BINANCE_API_KEY"`
	APISecret string `env:"BINANCE_API_SECRET"`
}

type EpayConfig struct {
	BaseURL    string `env:"EPAY_BASE_URL"`
	MerchantID string `env:"EPAY_MERCHANT_ID"`
	APIKey     string `env:"EPAY_API_KEY"`
}

func NewConfig() (Config, error) {
	cfg := Config{
		PayPal:  PayPalConfig{BaseURL: "https://api-m.sandbox.paypal.com"},
		Binance: BinanceConfig{BaseURL: "https://testnet.binance.vision"},
		Epay:    EpayConfig{BaseURL: "https://sandbox.epay.com/api/v1"},
	}

	flag.StringVar(&cfg.ServerAddr, "a", "0.0.0.0:8080", "server listening address [env:RUN_ADDRESS]")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log output level [env:LOG_LEVEL]")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database connection string [env:DATABASE_URI]")
	flag.StringVar(&cfg.JWTSecretKey, "s", "secretkey", "JWT secret to sign tokens [env:JWT_SECRET_KEY]")
	flag.Float64Var(&cfg.WithdrawalMin, "min", 10, "minimum withdrawal amount in USD [env:WITHDRAWAL_MIN_AMOUNT]")
	flag.Float64Var(&cfg.WithdrawalMax, "max", 10000, "maximum withdrawal amount in USD [env:WITHDRAWAL_MAX_AMOUNT]")
	flag.DurationVar(&cfg.ProviderTimeout, "t", 30*time.Second, "payout provider call timeout [env:PROVIDER_TIMEOUT]")
	flag.DurationVar(&cfg.ReconcileInterval, "i", time.Minute, "disputed withdrawals poll interval [env:RECONCILE_POLL_INTERVAL]")
	flag.DurationVar(&cfg.DispatchStaleAge, "stale", 5*time.Minute, "age after which an in-flight dispatch is considered stale [env:DISPATCH_STALE_AGE]")
	flag.StringVar(&cfg.NotifyWebhookURL, "n", "", "notification webhook URL [env:NOTIFY_WEBHOOK_URL]")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	if err := env.Parse(&cfg.PayPal); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	if err := env.Parse(&cfg.Binance); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	if err := env.Parse(&cfg.Epay); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	return cfg, nil
}
