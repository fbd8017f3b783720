// Package settlement orchestrates a withdrawal end-to-end: validate the
// request, earmark funds on the ledger, dispatch to the payout provider and
// commit or compensate depending on the outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/notify"
	"github.com/maridaapp/settlement/internal/provider"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountBelowMinimum  = errors.New("withdrawal amount is below the minimum")
	ErrAmountAboveMaximum  = errors.New("withdrawal amount is above the maximum")
	ErrCannotCancel        = errors.New("withdrawal can no longer be cancelled")
	ErrWithdrawalCancelled = errors.New("withdrawal was cancelled before dispatch")
	ErrBadResolution       = errors.New("disputed withdrawal can only resolve to succeeded or compensated")
)

const (
	errCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	errCodeProviderRejected    = "PROVIDER_REJECTED"
	errCodeProviderTimeout     = "PROVIDER_TIMEOUT"
	errCodeProviderUnknown     = "PROVIDER_UNKNOWN"
)

type Settlement struct {
	log       *slog.Logger
	storage   storage.Storage
	providers *provider.Registry
	notifier  notify.Notifier
	minAmount decimal.Decimal
	maxAmount decimal.Decimal
}

func New(store storage.Storage, providers *provider.Registry, opts ...Option) *Settlement {
	s := &Settlement{
		log:       slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		storage:   store,
		providers: providers,
		notifier:  notify.NoopNotifier{},
		minAmount: decimal.NewFromInt(10),
		maxAmount: decimal.NewFromInt(10000),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type Option func(s *Settlement)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Settlement) {
		s.log = logger.With(slog.String("module", "settlement"))
	}
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Settlement) {
		s.notifier = notifier
	}
}

func WithLimits(minAmount, maxAmount decimal.Decimal) Option {
	return func(s *Settlement) {
		s.minAmount = minAmount
		s.maxAmount = maxAmount
	}
}

// RequestWithdrawal runs one withdrawal attempt to a settled state.
//
// Definite provider failures compensate: the reservation is released and the
// caller gets the decline reason. Ambiguous outcomes (timeout, unclassified
// response) keep the reservation held and park the record as disputed for
// reconciliation; crediting the user back on an unknown outcome could pay
// twice. In that case the returned withdrawal reports a processing
// projection and no error.
func (s *Settlement) RequestWithdrawal(
	ctx context.Context, userLogin string, amount decimal.Decimal, method withdrawals.Method,
) (*withdrawals.Withdrawal, error) {
	if err := s.validateAmount(amount); err != nil {
		return nil, err
	}

	usr, err := s.storage.GetUser(ctx, userLogin)
	if err != nil {
		return nil, fmt.Errorf("storage.GetUser: %w", err)
	}

	destination, err := provider.Destination(usr, method)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	adapter, err := s.providers.Adapter(method)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	withdrawal, err := withdrawals.CreateWithdrawal(userLogin, amount, method)
	if err != nil {
		return nil, fmt.Errorf("withdrawals.CreateWithdrawal: %w", err)
	}

	if err := s.storage.CreateWithdrawal(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("storage.CreateWithdrawal: %w", err)
	}

	reservation, err := ledger.CreateReservation(userLogin, withdrawal.ID(), amount)
	if err != nil {
		return nil, fmt.Errorf("ledger.CreateReservation: %w", err)
	}

	if err := s.storage.Reserve(ctx, reservation); err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			s.reject(ctx, withdrawal, errCodeInsufficientBalance, "account balance does not cover the requested amount")
		}

		return nil, fmt.Errorf("storage.Reserve: %w", err)
	}

	// Persist each transition before the next external call so a crash
	// mid-flight leaves a recoverable record. Both advances are conditional
	// on the expected prior status: a concurrent cancel wins the record and
	// the dispatch must stop before any money moves.
	if err := s.advance(ctx, withdrawal, reservation, withdrawals.StatusCreated, withdrawals.StatusReserved); err != nil {
		return nil, err
	}

	if err := s.advance(ctx, withdrawal, reservation, withdrawals.StatusReserved, withdrawals.StatusDispatching); err != nil {
		return nil, err
	}

	receipt, err := adapter.Payout(ctx, provider.PayoutRequest{
		WithdrawalID: withdrawal.ID(),
		Destination:  destination,
		Amount:       amount,
		Currency:     withdrawal.Currency(),
	})
	if err != nil {
		return s.finalizeFailure(ctx, withdrawal, reservation, err)
	}

	withdrawal.SetReceipt(receipt.Reference, receipt.Metadata)

	if err := s.storage.CommitReservation(ctx, reservation.ID()); err != nil {
		return nil, fmt.Errorf("storage.CommitReservation: %w", err)
	}

	if err := s.transition(ctx, withdrawal, withdrawals.StatusSucceeded); err != nil {
		return nil, err
	}

	s.log.Info("Withdrawal succeeded",
		slog.String("withdrawal_id", withdrawal.ID().String()),
		slog.String("user", userLogin),
		slog.String("method", method.String()),
		slog.String("amount", amount.String()),
	)

	s.notifyUser(userLogin, fmt.Sprintf(
		"Your withdrawal of %s USD via %s has been completed", amount.StringFixed(2), method))

	return withdrawal, nil
}

// finalizeFailure settles a failed dispatch. Only a definite provider
// rejection releases the reservation; everything else is ambiguous and must
// go through reconciliation with the funds still held.
func (s *Settlement) finalizeFailure(
	ctx context.Context, withdrawal *withdrawals.Withdrawal, reservation *ledger.Reservation, payoutErr error,
) (*withdrawals.Withdrawal, error) {
	var rejection *provider.RejectionError

	if errors.As(payoutErr, &rejection) || errors.Is(payoutErr, provider.ErrRejected) {
		code := errCodeProviderRejected
		if rejection != nil && rejection.Code != "" {
			code = rejection.Code
		}

		withdrawal.SetError(code, payoutErr.Error())

		if err := s.transition(ctx, withdrawal, withdrawals.StatusRejected); err != nil {
			return nil, err
		}

		if err := s.storage.ReleaseReservation(ctx, reservation.ID()); err != nil {
			return nil, fmt.Errorf("storage.ReleaseReservation: %w", err)
		}

		s.log.Warn("Withdrawal rejected by provider",
			slog.String("withdrawal_id", withdrawal.ID().String()),
			slog.String("error_code", code),
			slog.Any("error", payoutErr),
		)

		s.notifyUser(withdrawal.UserLogin(), fmt.Sprintf(
			"Your withdrawal of %s USD via %s could not be completed",
			withdrawal.Amount().StringFixed(2), withdrawal.Method()))

		return nil, fmt.Errorf("adapter.Payout: %w", payoutErr)
	}

	code := errCodeProviderUnknown
	if errors.Is(payoutErr, provider.ErrTimeout) {
		code = errCodeProviderTimeout
	}

	withdrawal.SetError(code, payoutErr.Error())

	if err := s.transition(ctx, withdrawal, withdrawals.StatusDisputed); err != nil {
		return nil, err
	}

	s.log.Warn("Withdrawal outcome ambiguous, parked for reconciliation",
		slog.String("withdrawal_id", withdrawal.ID().String()),
		slog.Any("error", payoutErr),
	)

	return withdrawal, nil
}

// CancelWithdrawal withdraws a request that has not been dispatched yet.
// The conditional transition refuses a cancel racing an in-flight dispatch.
func (s *Settlement) CancelWithdrawal(
	ctx context.Context, userLogin string, withdrawalID uuid.UUID,
) (*withdrawals.Withdrawal, error) {
	withdrawal, err := s.storage.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetWithdrawal: %w", err)
	}

	if withdrawal.UserLogin() != userLogin {
		return nil, storage.ErrWithdrawalNotFound //nolint:wrapcheck
	}

	cancelled, err := s.storage.TransitionWithdrawal(ctx, withdrawalID,
		[]withdrawals.Status{withdrawals.StatusCreated, withdrawals.StatusReserved},
		withdrawals.StatusCancelled,
	)
	if err != nil {
		if errors.Is(err, storage.ErrWithdrawalConflict) {
			return nil, fmt.Errorf("%w: status is %s", ErrCannotCancel, withdrawal.Status())
		}

		return nil, fmt.Errorf("storage.TransitionWithdrawal: %w", err)
	}

	if err := s.releaseByWithdrawal(ctx, withdrawalID); err != nil {
		return nil, err
	}

	s.log.Info("Withdrawal cancelled",
		slog.String("withdrawal_id", withdrawalID.String()),
		slog.String("user", userLogin),
	)

	return cancelled, nil
}

// ResolveDisputed settles a disputed withdrawal once the true provider
// outcome is known, committing or releasing the still-held reservation.
func (s *Settlement) ResolveDisputed(
	ctx context.Context, withdrawalID uuid.UUID, outcome withdrawals.Status,
) (*withdrawals.Withdrawal, error) {
	if outcome != withdrawals.StatusSucceeded && outcome != withdrawals.StatusCompensated {
		return nil, fmt.Errorf("%w: got %s", ErrBadResolution, outcome)
	}

	resolved, err := s.storage.TransitionWithdrawal(ctx, withdrawalID,
		[]withdrawals.Status{withdrawals.StatusDisputed}, outcome)
	if err != nil {
		return nil, fmt.Errorf("storage.TransitionWithdrawal: %w", err)
	}

	if outcome == withdrawals.StatusSucceeded {
		reservation, err := s.storage.GetReservationByWithdrawal(ctx, withdrawalID)
		if err != nil {
			return nil, fmt.Errorf("storage.GetReservationByWithdrawal: %w", err)
		}

		if err := s.storage.CommitReservation(ctx, reservation.ID()); err != nil {
			return nil, fmt.Errorf("storage.CommitReservation: %w", err)
		}

		s.notifyUser(resolved.UserLogin(), fmt.Sprintf(
			"Your withdrawal of %s USD via %s has been completed",
			resolved.Amount().StringFixed(2), resolved.Method()))
	} else {
		if err := s.releaseByWithdrawal(ctx, withdrawalID); err != nil {
			return nil, err
		}

		s.notifyUser(resolved.UserLogin(), fmt.Sprintf(
			"Your withdrawal of %s USD via %s could not be completed and the funds were returned",
			resolved.Amount().StringFixed(2), resolved.Method()))
	}

	s.log.Info("Disputed withdrawal resolved",
		slog.String("withdrawal_id", withdrawalID.String()),
		slog.String("outcome", outcome.String()),
	)

	return resolved, nil
}

// EscalateDispatch parks a stale in-flight dispatch as disputed so the
// reconciler picks it up. Used for records left behind by a crash.
func (s *Settlement) EscalateDispatch(ctx context.Context, withdrawalID uuid.UUID) error {
	if _, err := s.storage.TransitionWithdrawal(ctx, withdrawalID,
		[]withdrawals.Status{withdrawals.StatusDispatching}, withdrawals.StatusDisputed,
	); err != nil {
		return fmt.Errorf("storage.TransitionWithdrawal: %w", err)
	}

	return nil
}

// WithdrawalHistory returns the user's withdrawals, most recent first.
func (s *Settlement) WithdrawalHistory(ctx context.Context, userLogin string) ([]*withdrawals.Withdrawal, error) {
	history, err := s.storage.GetWithdrawalsByLogin(ctx, userLogin)
	if err != nil {
		return nil, fmt.Errorf("storage.GetWithdrawalsByLogin: %w", err)
	}

	return history, nil
}

func (s *Settlement) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return withdrawals.ErrAmountNotPositive //nolint:wrapcheck
	}

	if amount.LessThan(s.minAmount) {
		return fmt.Errorf("%w: %s USD", ErrAmountBelowMinimum, s.minAmount)
	}

	if amount.GreaterThan(s.maxAmount) {
		return fmt.Errorf("%w: %s USD", ErrAmountAboveMaximum, s.maxAmount)
	}

	return nil
}

// advance persists a pre-dispatch transition conditionally on the expected
// prior status. Losing the conditional update means a concurrent cancel
// already took the record: the reservation is released and the attempt
// stops before the provider is called.
func (s *Settlement) advance(
	ctx context.Context, withdrawal *withdrawals.Withdrawal, reservation *ledger.Reservation,
	from, to withdrawals.Status,
) error {
	if _, err := s.storage.TransitionWithdrawal(ctx, withdrawal.ID(),
		[]withdrawals.Status{from}, to,
	); err != nil {
		if errors.Is(err, storage.ErrWithdrawalConflict) {
			// Release is idempotent, so it does not matter whether the
			// cancel already returned the funds.
			if relErr := s.storage.ReleaseReservation(ctx, reservation.ID()); relErr != nil {
				return fmt.Errorf("storage.ReleaseReservation: %w", relErr)
			}

			return fmt.Errorf("%w: %s", ErrWithdrawalCancelled, withdrawal.ID())
		}

		return fmt.Errorf("storage.TransitionWithdrawal: %w", err)
	}

	if err := withdrawal.Transition(to); err != nil {
		return fmt.Errorf("withdrawal.Transition: %w", err)
	}

	return nil
}

// transition persists a post-dispatch finalization. The record is past the
// cancellable statuses at this point, so an unconditional write is safe.
func (s *Settlement) transition(
	ctx context.Context, withdrawal *withdrawals.Withdrawal, to withdrawals.Status,
) error {
	if err := withdrawal.Transition(to); err != nil {
		return fmt.Errorf("withdrawal.Transition: %w", err)
	}

	if err := s.storage.UpdateWithdrawal(ctx, withdrawal); err != nil {
		return fmt.Errorf("storage.UpdateWithdrawal: %w", err)
	}

	return nil
}

// reject settles a pre-dispatch refusal. No funds are held, so there is
// nothing to compensate. The conditional transition keeps a concurrent
// cancel from being overwritten; losing to one changes nothing the caller
// sees.
func (s *Settlement) reject(ctx context.Context, withdrawal *withdrawals.Withdrawal, code, message string) {
	withdrawal.SetError(code, message)

	if _, err := s.storage.TransitionWithdrawal(ctx, withdrawal.ID(),
		[]withdrawals.Status{withdrawals.StatusCreated}, withdrawals.StatusRejected,
	); err != nil {
		if !errors.Is(err, storage.ErrWithdrawalConflict) {
			s.log.Error("Failed to persist withdrawal rejection",
				slog.String("withdrawal_id", withdrawal.ID().String()),
				slog.Any("error", err),
			)
		}

		return
	}

	if err := withdrawal.Transition(withdrawals.StatusRejected); err != nil {
		s.log.Error("Failed to persist withdrawal rejection",
			slog.String("withdrawal_id", withdrawal.ID().String()),
			slog.Any("error", err),
		)

		return
	}

	// Second write carries the error code; the record is terminal now, so
	// nothing else races it.
	if err := s.storage.UpdateWithdrawal(ctx, withdrawal); err != nil {
		s.log.Error("Failed to persist withdrawal rejection",
			slog.String("withdrawal_id", withdrawal.ID().String()),
			slog.Any("error", err),
		)
	}
}

func (s *Settlement) releaseByWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error {
	reservation, err := s.storage.GetReservationByWithdrawal(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, storage.ErrReservationNotFound) {
			// Cancelled before any funds were earmarked.
			return nil
		}

		return fmt.Errorf("storage.GetReservationByWithdrawal: %w", err)
	}

	if err := s.storage.ReleaseReservation(ctx, reservation.ID()); err != nil {
		return fmt.Errorf("storage.ReleaseReservation: %w", err)
	}

	return nil
}

func (s *Settlement) notifyUser(userLogin, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.notifier.Send(ctx, userLogin, message); err != nil {
			s.log.Error("notifier.Send", slog.Any("error", err))
		}
	}()
}
