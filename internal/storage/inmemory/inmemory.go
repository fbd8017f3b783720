package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/shopspring/decimal"
)

var _ storage.Storage = (*Storage)(nil)

type userRecord struct {
	login        string
	email        string
	passwordHash string
	paymentInfo  users.PaymentInfo
}

type accountRecord struct {
	balance   decimal.Decimal
	reserved  decimal.Decimal
	withdrawn decimal.Decimal
}

type reservationRecord struct {
	login        string
	withdrawalID uuid.UUID
	amount       decimal.Decimal
	status       ledger.ReservationStatus
	createdAt    time.Time
}

type entryRecord struct {
	entryType    ledger.EntryType
	amount       decimal.Decimal
	withdrawalID uuid.UUID
	createdAt    time.Time
}

type withdrawalRecord struct {
	login        string
	amount       decimal.Decimal
	currency     string
	method       withdrawals.Method
	status       withdrawals.Status
	providerRef  string
	providerMeta map[string]string
	errorCode    string
	errorMessage string
	createdAt    time.Time
	completedAt  time.Time
}

type UserStore struct {
	users map[string]*userRecord
	mu    sync.Mutex
}

// LedgerStore guards accounts, reservations and the entry log with one
// mutex: reserve/commit/release must observe all three consistently.
type LedgerStore struct {
	accounts     map[string]*accountRecord
	reservations map[uuid.UUID]*reservationRecord
	entries      map[string][]*entryRecord
	mu           sync.Mutex
}

type WithdrawalStore struct {
	withdrawals map[uuid.UUID]*withdrawalRecord
	mu          sync.Mutex
}

type Storage struct {
	UserStore       UserStore
	LedgerStore     LedgerStore
	WithdrawalStore WithdrawalStore
}

func NewStorage() *Storage {
	return &Storage{
		UserStore: UserStore{
			users: make(map[string]*userRecord),
		},
		LedgerStore: LedgerStore{
			accounts:     make(map[string]*accountRecord),
			reservations: make(map[uuid.UUID]*reservationRecord),
			entries:      make(map[string][]*entryRecord),
		},
		WithdrawalStore: WithdrawalStore{
			withdrawals: make(map[uuid.UUID]*withdrawalRecord),
		},
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) CreateUser(_ context.Context, usr *users.User) error {
	s.UserStore.mu.Lock()
	defer s.UserStore.mu.Unlock()

	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	if _, ok := s.UserStore.users[usr.Login()]; ok {
		return storage.ErrUserAlreadyExists
	}

	s.UserStore.users[usr.Login()] = &userRecord{
		login:        usr.Login(),
		email:        usr.Email(),
		passwordHash: usr.PasswordHash(),
		paymentInfo:  usr.PaymentInfo(),
	}

	if _, ok := s.LedgerStore.accounts[usr.Login()]; ok {
		return storage.ErrAccountAlreadyExists
	}

	s.LedgerStore.accounts[usr.Login()] = &accountRecord{}

	return nil
}

func (s *Storage) GetUser(_ context.Context, login string) (*users.User, error) {
	s.UserStore.mu.Lock()
	defer s.UserStore.mu.Unlock()

	rec, ok := s.UserStore.users[login]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	usr, err := users.NewUser(rec.login, rec.email, rec.passwordHash, rec.paymentInfo)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return usr, nil
}

func (s *Storage) UpdateUserPaymentInfo(_ context.Context, login string, info users.PaymentInfo) error {
	s.UserStore.mu.Lock()
	defer s.UserStore.mu.Unlock()

	rec, ok := s.UserStore.users[login]
	if !ok {
		return storage.ErrUserNotFound
	}

	rec.paymentInfo = info

	return nil
}

func (s *Storage) GetAccount(_ context.Context, login string) (*ledger.Account, error) {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	rec, ok := s.LedgerStore.accounts[login]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	account, err := ledger.NewAccount(login, rec.balance, rec.reserved, rec.withdrawn)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return account, nil
}

func (s *Storage) Deposit(_ context.Context, login string, amount decimal.Decimal) error {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	rec, ok := s.LedgerStore.accounts[login]
	if !ok {
		return storage.ErrAccountNotFound
	}

	rec.balance = rec.balance.Add(amount)

	return nil
}

func (s *Storage) Reserve(_ context.Context, reservation *ledger.Reservation) error {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	rec, ok := s.LedgerStore.accounts[reservation.UserLogin()]
	if !ok {
		return storage.ErrAccountNotFound
	}

	// Check and increment under the same lock: this is the serialization
	// point for concurrent withdrawals on one account.
	if rec.balance.Sub(rec.reserved).LessThan(reservation.Amount()) {
		return storage.ErrInsufficientBalance
	}

	rec.reserved = rec.reserved.Add(reservation.Amount())

	s.LedgerStore.reservations[reservation.ID()] = &reservationRecord{
		login:        reservation.UserLogin(),
		withdrawalID: reservation.WithdrawalID(),
		amount:       reservation.Amount(),
		status:       ledger.ReservationHeld,
		createdAt:    reservation.CreatedAt(),
	}

	return nil
}

func (s *Storage) CommitReservation(_ context.Context, reservationID uuid.UUID) error {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	rec, ok := s.LedgerStore.reservations[reservationID]
	if !ok {
		return storage.ErrReservationNotFound
	}

	if rec.status == ledger.ReservationCommitted {
		return nil
	}

	if rec.status != ledger.ReservationHeld {
		return storage.ErrReservationConflict
	}

	account, ok := s.LedgerStore.accounts[rec.login]
	if !ok {
		return storage.ErrAccountNotFound
	}

	rec.status = ledger.ReservationCommitted
	account.balance = account.balance.Sub(rec.amount)
	account.reserved = account.reserved.Sub(rec.amount)
	account.withdrawn = account.withdrawn.Add(rec.amount)

	s.LedgerStore.entries[rec.login] = append(s.LedgerStore.entries[rec.login], &entryRecord{
		entryType:    ledger.EntryWithdrawal,
		amount:       rec.amount.Neg(),
		withdrawalID: rec.withdrawalID,
		createdAt:    time.Now(),
	})

	return nil
}

func (s *Storage) ReleaseReservation(_ context.Context, reservationID uuid.UUID) error {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	rec, ok := s.LedgerStore.reservations[reservationID]
	if !ok {
		return storage.ErrReservationNotFound
	}

	if rec.status == ledger.ReservationReleased {
		return nil
	}

	if rec.status != ledger.ReservationHeld {
		return storage.ErrReservationConflict
	}

	account, ok := s.LedgerStore.accounts[rec.login]
	if !ok {
		return storage.ErrAccountNotFound
	}

	rec.status = ledger.ReservationReleased
	account.reserved = account.reserved.Sub(rec.amount)

	s.LedgerStore.entries[rec.login] = append(s.LedgerStore.entries[rec.login], &entryRecord{
		entryType:    ledger.EntryWithdrawal,
		amount:       rec.amount,
		withdrawalID: rec.withdrawalID,
		createdAt:    time.Now(),
	})

	return nil
}

func (s *Storage) GetReservationByWithdrawal(_ context.Context, withdrawalID uuid.UUID) (*ledger.Reservation, error) {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	for id, rec := range s.LedgerStore.reservations {
		if rec.withdrawalID == withdrawalID {
			reservation, err := ledger.NewReservation(
				id, rec.login, rec.withdrawalID, rec.amount, rec.status, rec.createdAt,
			)
			if err != nil {
				return nil, err //nolint:wrapcheck
			}

			return reservation, nil
		}
	}

	return nil, storage.ErrReservationNotFound
}

func (s *Storage) GetEntriesByLogin(_ context.Context, login string) ([]*ledger.Entry, error) {
	s.LedgerStore.mu.Lock()
	defer s.LedgerStore.mu.Unlock()

	records := s.LedgerStore.entries[login]

	entries := make([]*ledger.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, ledger.NewEntry(login, rec.entryType, rec.amount, rec.withdrawalID, rec.createdAt))
	}

	return entries, nil
}

func (s *Storage) CreateWithdrawal(_ context.Context, withdrawal *withdrawals.Withdrawal) error {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	s.WithdrawalStore.withdrawals[withdrawal.ID()] = newWithdrawalRecord(withdrawal)

	return nil
}

func (s *Storage) UpdateWithdrawal(_ context.Context, withdrawal *withdrawals.Withdrawal) error {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	if _, ok := s.WithdrawalStore.withdrawals[withdrawal.ID()]; !ok {
		return storage.ErrWithdrawalNotFound
	}

	s.WithdrawalStore.withdrawals[withdrawal.ID()] = newWithdrawalRecord(withdrawal)

	return nil
}

func (s *Storage) TransitionWithdrawal(
	_ context.Context, id uuid.UUID, from []withdrawals.Status, to withdrawals.Status,
) (*withdrawals.Withdrawal, error) {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	rec, ok := s.WithdrawalStore.withdrawals[id]
	if !ok {
		return nil, storage.ErrWithdrawalNotFound
	}

	matched := false
	for _, status := range from {
		if rec.status == status {
			matched = true

			break
		}
	}

	if !matched {
		return nil, storage.ErrWithdrawalConflict
	}

	rec.status = to

	if to.Terminal() && rec.completedAt.IsZero() {
		rec.completedAt = time.Now()
	}

	return restoreWithdrawal(id, rec)
}

func (s *Storage) GetWithdrawal(_ context.Context, id uuid.UUID) (*withdrawals.Withdrawal, error) {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	rec, ok := s.WithdrawalStore.withdrawals[id]
	if !ok {
		return nil, storage.ErrWithdrawalNotFound
	}

	return restoreWithdrawal(id, rec)
}

func (s *Storage) GetWithdrawalsByLogin(_ context.Context, login string) ([]*withdrawals.Withdrawal, error) {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	result := make([]*withdrawals.Withdrawal, 0)

	for id, rec := range s.WithdrawalStore.withdrawals {
		if rec.login != login {
			continue
		}

		withdrawal, err := restoreWithdrawal(id, rec)
		if err != nil {
			return nil, err
		}

		result = append(result, withdrawal)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().After(result[j].CreatedAt())
	})

	return result, nil
}

func (s *Storage) GetWithdrawalsByStatus(
	_ context.Context, statuses ...withdrawals.Status,
) ([]*withdrawals.Withdrawal, error) {
	s.WithdrawalStore.mu.Lock()
	defer s.WithdrawalStore.mu.Unlock()

	result := make([]*withdrawals.Withdrawal, 0)

	for id, rec := range s.WithdrawalStore.withdrawals {
		for _, status := range statuses {
			if rec.status != status {
				continue
			}

			withdrawal, err := restoreWithdrawal(id, rec)
			if err != nil {
				return nil, err
			}

			result = append(result, withdrawal)

			break
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})

	return result, nil
}

func newWithdrawalRecord(withdrawal *withdrawals.Withdrawal) *withdrawalRecord {
	return &withdrawalRecord{
		login:        withdrawal.UserLogin(),
		amount:       withdrawal.Amount(),
		currency:     withdrawal.Currency(),
		method:       withdrawal.Method(),
		status:       withdrawal.Status(),
		providerRef:  withdrawal.ProviderRef(),
		providerMeta: withdrawal.ProviderMeta(),
		errorCode:    withdrawal.ErrorCode(),
		errorMessage: withdrawal.ErrorMessage(),
		createdAt:    withdrawal.CreatedAt(),
		completedAt:  withdrawal.CompletedAt(),
	}
}

func restoreWithdrawal(id uuid.UUID, rec *withdrawalRecord) (*withdrawals.Withdrawal, error) {
	return withdrawals.NewWithdrawal( //nolint:wrapcheck
		id, rec.login, rec.amount, rec.currency, rec.method, rec.status,
		rec.providerRef, rec.providerMeta, rec.errorCode, rec.errorMessage,
		rec.createdAt, rec.completedAt,
	)
}
