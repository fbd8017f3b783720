// Package reconciler resolves withdrawals whose provider outcome is unknown.
// It periodically probes the payout providers for disputed records and
// escalates dispatches that never came back.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/provider"
	"github.com/maridaapp/settlement/internal/settlement"
	"github.com/maridaapp/settlement/internal/storage"
)

type Reconciler struct {
	log          *slog.Logger
	storage      storage.Storage
	providers    *provider.Registry
	settlement   *settlement.Settlement
	pollInterval time.Duration
	staleAge     time.Duration
}

type Config struct {
	logger       *slog.Logger
	pollInterval time.Duration
	staleAge     time.Duration
}

func New(store storage.Storage, providers *provider.Registry, stl *settlement.Settlement, opts ...Option) *Reconciler {
	cfg := &Config{
		logger:       slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		pollInterval: time.Minute,
		staleAge:     5 * time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Reconciler{
		log:          cfg.logger.With(slog.String("module", "reconciler")),
		storage:      store,
		providers:    providers,
		settlement:   stl,
		pollInterval: cfg.pollInterval,
		staleAge:     cfg.staleAge,
	}
}

type Option func(r *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Config) {
		r.logger = logger
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *Config) {
		r.pollInterval = interval
	}
}

func WithStaleAge(age time.Duration) Option {
	return func(r *Config) {
		r.staleAge = age
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.log.Info("Start reconciler daemon")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Context done, stopping reconciler daemon")

			return nil

		case <-ticker.C:
			if err := r.Process(ctx); err != nil {
				r.log.Error("reconciler.Process", slog.Any("error", err))
			}
		}
	}
}

// Process runs one reconciliation pass: stale dispatches are parked as
// disputed, then every disputed record the provider can be asked about is
// probed and settled according to the provider's answer.
func (r *Reconciler) Process(ctx context.Context) error {
	if err := r.escalateStale(ctx); err != nil {
		return err
	}

	disputed, err := r.storage.GetWithdrawalsByStatus(ctx, withdrawals.StatusDisputed)
	if err != nil {
		return fmt.Errorf("storage.GetWithdrawalsByStatus: %w", err)
	}

	if len(disputed) == 0 {
		return nil
	}

	r.log.Info("Reconciling disputed withdrawals", slog.Int("count", len(disputed)))

	wdrCh := withdrawalGenerator(ctx, disputed)

	r.withdrawalProcessor(ctx, wdrCh)

	return nil
}

// escalateStale parks dispatching records older than staleAge as disputed.
// A record stuck in dispatching means the process died mid-call, which is
// exactly an unknown outcome.
func (r *Reconciler) escalateStale(ctx context.Context) error {
	dispatching, err := r.storage.GetWithdrawalsByStatus(ctx, withdrawals.StatusDispatching)
	if err != nil {
		return fmt.Errorf("storage.GetWithdrawalsByStatus: %w", err)
	}

	cutoff := time.Now().Add(-r.staleAge)

	for _, wdr := range dispatching {
		if wdr.CreatedAt().After(cutoff) {
			continue
		}

		if err := r.settlement.EscalateDispatch(ctx, wdr.ID()); err != nil {
			r.log.Error("settlement.EscalateDispatch",
				slog.String("withdrawal_id", wdr.ID().String()),
				slog.Any("error", err),
			)

			continue
		}

		r.log.Warn("Stale dispatch escalated to disputed",
			slog.String("withdrawal_id", wdr.ID().String()),
		)
	}

	return nil
}

func withdrawalGenerator(ctx context.Context, wdrs []*withdrawals.Withdrawal) chan *withdrawals.Withdrawal {
	wdrCh := make(chan *withdrawals.Withdrawal)

	go func() {
		defer close(wdrCh)

		for _, wdr := range wdrs {
			select {
			case <-ctx.Done():
				return
			case wdrCh <- wdr:
			}
		}
	}()

	return wdrCh
}

func (r *Reconciler) withdrawalProcessor(ctx context.Context, wdrCh chan *withdrawals.Withdrawal) {
	poolSize := 1

	wg := &sync.WaitGroup{}

	// Spawn workers
	for w := 1; w <= poolSize; w++ {
		wg.Add(1)
		go r.withdrawalProcessorWorker(ctx, wg, wdrCh)
	}

	// Wait for workers
	wg.Wait()
}

func (r *Reconciler) withdrawalProcessorWorker(
	ctx context.Context, wg *sync.WaitGroup, wdrCh chan *withdrawals.Withdrawal,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Context done, stopping processing")

			return

		case wdr, ok := <-wdrCh:
			if !ok {
				return
			}

			r.reconcileWithdrawal(ctx, wdr)
		}
	}
}

func (r *Reconciler) reconcileWithdrawal(ctx context.Context, wdr *withdrawals.Withdrawal) {
	log := r.log.With(slog.String("withdrawal_id", wdr.ID().String()))

	adapter, err := r.providers.Adapter(wdr.Method())
	if err != nil {
		log.Error("providers.Adapter", slog.Any("error", err))

		return
	}

	// Providers with client-assigned references can be probed even when the
	// dispatch died before a receipt was stored.
	reference := adapter.ProbeReference(wdr.ID(), wdr.ProviderRef())
	if reference == "" {
		log.Warn("Disputed withdrawal cannot be probed, left for operator resolution")

		return
	}

	status, err := adapter.PayoutStatus(ctx, reference)
	if err != nil {
		log.Error("adapter.PayoutStatus", slog.Any("error", err))

		return
	}

	switch status {
	case provider.StatusSucceeded:
		if _, err := r.settlement.ResolveDisputed(ctx, wdr.ID(), withdrawals.StatusSucceeded); err != nil {
			log.Error("settlement.ResolveDisputed", slog.Any("error", err))

			return
		}

		log.Info("Disputed withdrawal confirmed succeeded")

	case provider.StatusFailed:
		if _, err := r.settlement.ResolveDisputed(ctx, wdr.ID(), withdrawals.StatusCompensated); err != nil {
			log.Error("settlement.ResolveDisputed", slog.Any("error", err))

			return
		}

		log.Info("Disputed withdrawal confirmed failed, funds returned")

	case provider.StatusPending, provider.StatusUnknown:
		log.Info("Provider outcome still undetermined", slog.String("provider_status", status.String()))
	}
}
