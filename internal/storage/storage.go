package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/shopspring/decimal"
)

var (
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrAccountAlreadyExists = errors.New("ledger account already exists")
	ErrAccountNotFound      = errors.New("ledger account not found")
	ErrInsufficientBalance  = errors.New("ledger account not enough funds")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationConflict  = errors.New("reservation is in a conflicting state")
	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrWithdrawalConflict   = errors.New("withdrawal is in a conflicting state")
)

type UserStorage interface {
	// CreateUser persists the user and opens an empty ledger account for it
	// in the same transaction.
	CreateUser(ctx context.Context, usr *users.User) error
	GetUser(ctx context.Context, login string) (*users.User, error)
	UpdateUserPaymentInfo(ctx context.Context, login string, info users.PaymentInfo) error
}

type LedgerStorage interface {
	GetAccount(ctx context.Context, login string) (*ledger.Account, error)

	// Deposit credits the account balance. Used by the coin economy side.
	Deposit(ctx context.Context, login string, amount decimal.Decimal) error

	// Reserve atomically earmarks the reservation amount: the available
	// balance check and the reserved increment happen in one conditional
	// update with no read-then-write gap visible to concurrent callers.
	// Fails with ErrInsufficientBalance when available funds do not cover it.
	Reserve(ctx context.Context, reservation *ledger.Reservation) error

	// CommitReservation turns a held reservation into a permanent debit and
	// appends a ledger entry. Committing an already committed reservation is
	// a no-op.
	CommitReservation(ctx context.Context, reservationID uuid.UUID) error

	// ReleaseReservation cancels a held reservation, balance unchanged, and
	// appends a ledger entry. Releasing an already released reservation is a
	// no-op.
	ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error

	GetReservationByWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*ledger.Reservation, error)
	GetEntriesByLogin(ctx context.Context, login string) ([]*ledger.Entry, error)
}

type WithdrawalStorage interface {
	CreateWithdrawal(ctx context.Context, withdrawal *withdrawals.Withdrawal) error
	UpdateWithdrawal(ctx context.Context, withdrawal *withdrawals.Withdrawal) error

	// TransitionWithdrawal moves a withdrawal to the target status only if
	// its current status is one of from, in a single conditional update.
	// Returns ErrWithdrawalConflict otherwise. This is what serializes a
	// cancel against a concurrent dispatch.
	TransitionWithdrawal(
		ctx context.Context, id uuid.UUID, from []withdrawals.Status, to withdrawals.Status,
	) (*withdrawals.Withdrawal, error)

	GetWithdrawal(ctx context.Context, id uuid.UUID) (*withdrawals.Withdrawal, error)
	GetWithdrawalsByLogin(ctx context.Context, login string) ([]*withdrawals.Withdrawal, error)
	GetWithdrawalsByStatus(ctx context.Context, statuses ...withdrawals.Status) ([]*withdrawals.Withdrawal, error)
}

type Storage interface {
	UserStorage
	LedgerStorage
	WithdrawalStorage
	Close() error
	Ping(ctx context.Context) error
}

func NewStorage(store Storage) Storage {
	return store
}
