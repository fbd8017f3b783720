//nolint:wrapcheck
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotPositive = errors.New("ledger amount must be positive")
	ErrBalanceNegative   = errors.New("ledger balance is negative")
	ErrReservedExceeds   = errors.New("ledger reserved amount exceeds balance")
)

// Account is the authoritative record of a user's spendable coin balance.
// The invariant balance >= reserved >= 0 holds at all times; Available is
// what new reservations may draw from.
type Account struct {
	userLogin string
	balance   decimal.Decimal
	reserved  decimal.Decimal
	withdrawn decimal.Decimal
}

func NewAccount(userLogin string, balance, reserved, withdrawn decimal.Decimal) (*Account, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if balance.IsNegative() || reserved.IsNegative() {
		return nil, ErrBalanceNegative
	}

	if reserved.GreaterThan(balance) {
		return nil, ErrReservedExceeds
	}

	return &Account{
		userLogin: userLogin,
		balance:   balance,
		reserved:  reserved,
		withdrawn: withdrawn,
	}, nil
}

func (a *Account) UserLogin() string {
	return a.userLogin
}

func (a *Account) Balance() decimal.Decimal {
	return a.balance
}

func (a *Account) Reserved() decimal.Decimal {
	return a.reserved
}

func (a *Account) Withdrawn() decimal.Decimal {
	return a.withdrawn
}

// Available is the balance minus amounts earmarked for in-flight withdrawals.
func (a *Account) Available() decimal.Decimal {
	return a.balance.Sub(a.reserved)
}

// ReservationStatus tracks the lifecycle of an earmark on an account.
type ReservationStatus string

const (
	// ReservationHeld means funds are earmarked pending a payout outcome.
	ReservationHeld ReservationStatus = "held"

	// ReservationCommitted means the earmark became a permanent debit.
	ReservationCommitted ReservationStatus = "committed"

	// ReservationReleased means the earmark was cancelled, balance untouched.
	ReservationReleased ReservationStatus = "released"
)

// Reservation is a temporary, atomic earmarking of funds pending an external
// payout outcome. It references exactly one withdrawal.
type Reservation struct {
	id           uuid.UUID
	userLogin    string
	withdrawalID uuid.UUID
	amount       decimal.Decimal
	status       ReservationStatus
	createdAt    time.Time
}

func CreateReservation(userLogin string, withdrawalID uuid.UUID, amount decimal.Decimal) (*Reservation, error) {
	return NewReservation(uuid.New(), userLogin, withdrawalID, amount, ReservationHeld, time.Now())
}

func NewReservation(
	id uuid.UUID, userLogin string, withdrawalID uuid.UUID,
	amount decimal.Decimal, status ReservationStatus, createdAt time.Time,
) (*Reservation, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if !amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	return &Reservation{
		id:           id,
		userLogin:    userLogin,
		withdrawalID: withdrawalID,
		amount:       amount,
		status:       status,
		createdAt:    createdAt,
	}, nil
}

func (r *Reservation) ID() uuid.UUID {
	return r.id
}

func (r *Reservation) UserLogin() string {
	return r.userLogin
}

func (r *Reservation) WithdrawalID() uuid.UUID {
	return r.withdrawalID
}

func (r *Reservation) Amount() decimal.Decimal {
	return r.amount
}

func (r *Reservation) Status() ReservationStatus {
	return r.status
}

func (r *Reservation) CreatedAt() time.Time {
	return r.createdAt
}

// EntryType classifies a ledger log record.
type EntryType string

const (
	// EntryWithdrawal records a balance movement caused by a withdrawal:
	// negative on commit, positive when a held reservation is credited back.
	EntryWithdrawal EntryType = "withdrawal"
)

// Entry is one append-only transaction log record of an account.
type Entry struct {
	userLogin    string
	entryType    EntryType
	amount       decimal.Decimal
	withdrawalID uuid.UUID
	createdAt    time.Time
}

func NewEntry(userLogin string, entryType EntryType, amount decimal.Decimal, withdrawalID uuid.UUID, createdAt time.Time) *Entry {
	return &Entry{
		userLogin:    userLogin,
		entryType:    entryType,
		amount:       amount,
		withdrawalID: withdrawalID,
		createdAt:    createdAt,
	}
}

func (e *Entry) UserLogin() string {
	return e.userLogin
}

func (e *Entry) Type() EntryType {
	return e.entryType
}

func (e *Entry) Amount() decimal.Decimal {
	return e.amount
}

func (e *Entry) WithdrawalID() uuid.UUID {
	return e.withdrawalID
}

func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}
