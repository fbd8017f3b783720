package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maridaapp/settlement/internal/config"
	"github.com/maridaapp/settlement/internal/httpclient"
	"github.com/maridaapp/settlement/internal/logger"
	"github.com/maridaapp/settlement/internal/notify"
	"github.com/maridaapp/settlement/internal/provider"
	"github.com/maridaapp/settlement/internal/provider/binance"
	"github.com/maridaapp/settlement/internal/provider/epay"
	"github.com/maridaapp/settlement/internal/provider/paypal"
	"github.com/maridaapp/settlement/internal/reconciler"
	"github.com/maridaapp/settlement/internal/server"
	"github.com/maridaapp/settlement/internal/settlement"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/maridaapp/settlement/internal/storage/inmemory"
	"github.com/maridaapp/settlement/internal/storage/pgstorage"
	"github.com/shopspring/decimal"
)

type Application struct {
	log        *slog.Logger
	storage    storage.Storage
	server     *server.Server
	reconciler *reconciler.Reconciler
}

func New() (*Application, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}

	logLevel, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger.ParseLogLevel: %w", err)
	}

	logg := logger.NewLogger(
		logger.WithLevel(logLevel),
		logger.WithFormat(logger.LogFormatJSON),
		logger.WithAddSource(false),
	)

	store, err := newStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("newStorage: %w", err)
	}

	providers := provider.NewRegistry(
		paypal.New(paypal.Config{
			BaseURL:      cfg.PayPal.BaseURL,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
		},
			paypal.WithLogger(logg),
			paypal.WithClient(providerClient(cfg.PayPal.BaseURL, cfg.ProviderTimeout)),
		),
		binance.New(binance.Config{
			BaseURL:   cfg.Binance.BaseURL,
			APIKey:    cfg.Binance.APIKey,
			APISecret: cfg.Binance.APISecret,
		},
			binance.WithLogger(logg),
			binance.WithClient(providerClient(cfg.Binance.BaseURL, cfg.ProviderTimeout)),
		),
		epay.New(epay.Config{
			BaseURL:    cfg.Epay.BaseURL,
			MerchantID: cfg.Epay.MerchantID,
			APIKey:     cfg.Epay.APIKey,
		},
			epay.WithLogger(logg),
			epay.WithClient(providerClient(cfg.Epay.BaseURL, cfg.ProviderTimeout)),
		),
	)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, notify.WithLogger(logg))
	}

	stl := settlement.New(store, providers,
		settlement.WithLogger(logg),
		settlement.WithNotifier(notifier),
		settlement.WithLimits(
			decimal.NewFromFloat(cfg.WithdrawalMin),
			decimal.NewFromFloat(cfg.WithdrawalMax),
		),
	)

	srv := server.NewServer(store, stl,
		server.WithServerAddr(cfg.ServerAddr),
		server.WithJWTSecretKey([]byte(cfg.JWTSecretKey)),
		server.WithLogger(logg),
	)

	rec := reconciler.New(store, providers, stl,
		reconciler.WithLogger(logg),
		reconciler.WithPollInterval(cfg.ReconcileInterval),
		reconciler.WithStaleAge(cfg.DispatchStaleAge),
	)

	return &Application{
		log:        logg,
		storage:    store,
		server:     srv,
		reconciler: rec,
	}, nil
}

func newStorage(cfg config.Config) (storage.Storage, error) {
	if cfg.DatabaseURI == "" {
		return storage.NewStorage(inmemory.NewStorage()), nil
	}

	pgstore, err := pgstorage.NewStorage(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("pgstorage.NewStorage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pgstore.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("pgstore.Bootstrap: %w", err)
	}

	return storage.NewStorage(pgstore), nil
}

func providerClient(baseURL string, timeout time.Duration) *resty.Client {
	return httpclient.New(
		httpclient.WithBaseURL(baseURL),
		httpclient.WithTimeout(timeout),
	)
}

func (a *Application) Run() error {
	errChan := make(chan error, 1)

	go func() {
		if err := a.server.Start(); err != nil {
			errChan <- fmt.Errorf("server.Start: %w", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := a.reconciler.Run(ctx); err != nil {
			errChan <- fmt.Errorf("reconciler.Run: %w", err)
		}
	}()

	// Graceful shutdown handler
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case err := <-errChan:
			return err

		case <-quit:
			a.log.Info("Gracefully shutting down application...")

			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.log.Error("server.Shutdown", slog.Any("error", err))
			}

			if err := a.storage.Close(); err != nil {
				a.log.Error("storage.Close", slog.Any("error", err))
			}

			return nil
		}
	}
}
