package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(t *testing.T, store *Storage, login string) {
	t.Helper()

	usr, err := users.CreateUser(login, login+"@example.com", "password")
	require.NoError(t, err)

	require.NoError(t, store.CreateUser(context.Background(), usr))
}

func newTestReservation(t *testing.T, login string, amount int64) *ledger.Reservation {
	t.Helper()

	reservation, err := ledger.CreateReservation(login, uuid.New(), decimal.NewFromInt(amount))
	require.NoError(t, err)

	return reservation
}

func TestCreateUser(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")

	usr, err := store.GetUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "user1", usr.Login())
	assert.Equal(t, "user1@example.com", usr.Email())

	// Creating a user opens an empty ledger account
	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().IsZero())
	assert.True(t, account.Reserved().IsZero())
}

func TestCreateUser_AlreadyExists(t *testing.T) {
	store := NewStorage()

	newTestUser(t, store, "user1")

	usr, err := users.CreateUser("user1", "other@example.com", "password")
	require.NoError(t, err)

	err = store.CreateUser(context.Background(), usr)
	assert.ErrorIs(t, err, storage.ErrUserAlreadyExists)
}

func TestUpdateUserPaymentInfo(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")

	info := users.PaymentInfo{
		PayPalEmail:    "payout@example.com",
		BinanceAddress: "0xabc",
	}

	require.NoError(t, store.UpdateUserPaymentInfo(ctx, "user1", info))

	usr, err := store.GetUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, info, usr.PaymentInfo())

	err = store.UpdateUserPaymentInfo(ctx, "ghost", info)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestReserve(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")
	require.NoError(t, store.Deposit(ctx, "user1", decimal.NewFromInt(100)))

	reservation := newTestReservation(t, "user1", 60)
	require.NoError(t, store.Reserve(ctx, reservation))

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(100)))
	assert.True(t, account.Reserved().Equal(decimal.NewFromInt(60)))
	assert.True(t, account.Available().Equal(decimal.NewFromInt(40)))

	// Second reserve draws from available, not balance
	err = store.Reserve(ctx, newTestReservation(t, "user1", 50))
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)
}

func TestReserve_AccountNotFound(t *testing.T) {
	store := NewStorage()

	err := store.Reserve(context.Background(), newTestReservation(t, "ghost", 10))
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
}

func TestCommitReservation(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")
	require.NoError(t, store.Deposit(ctx, "user1", decimal.NewFromInt(100)))

	reservation := newTestReservation(t, "user1", 60)
	require.NoError(t, store.Reserve(ctx, reservation))

	require.NoError(t, store.CommitReservation(ctx, reservation.ID()))

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(40)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().Equal(decimal.NewFromInt(60)))

	// Committing again is a no-op
	require.NoError(t, store.CommitReservation(ctx, reservation.ID()))

	account, err = store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(40)))

	entries, err := store.GetEntriesByLogin(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount().Equal(decimal.NewFromInt(-60)))
}

func TestReleaseReservation(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")
	require.NoError(t, store.Deposit(ctx, "user1", decimal.NewFromInt(100)))

	reservation := newTestReservation(t, "user1", 60)
	require.NoError(t, store.Reserve(ctx, reservation))

	require.NoError(t, store.ReleaseReservation(ctx, reservation.ID()))

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(100)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().IsZero())

	// Releasing again is a no-op
	require.NoError(t, store.ReleaseReservation(ctx, reservation.ID()))

	// Releasing a committed reservation is a conflict
	other := newTestReservation(t, "user1", 30)
	require.NoError(t, store.Reserve(ctx, other))
	require.NoError(t, store.CommitReservation(ctx, other.ID()))

	err = store.ReleaseReservation(ctx, other.ID())
	assert.ErrorIs(t, err, storage.ErrReservationConflict)
}

func TestReserve_Concurrent(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	newTestUser(t, store, "user1")
	require.NoError(t, store.Deposit(ctx, "user1", decimal.NewFromInt(100)))

	const attempts = 10

	var wg sync.WaitGroup

	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results <- store.Reserve(ctx, newTestReservation(t, "user1", 30))
		}()
	}

	wg.Wait()
	close(results)

	succeeded := 0
	insufficient := 0

	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, storage.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Balance 100 holds exactly three reservations of 30
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, insufficient)

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Reserved().Equal(decimal.NewFromInt(90)))
}

func TestTransitionWithdrawal(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	withdrawal, err := withdrawals.CreateWithdrawal("user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)
	require.NoError(t, err)
	require.NoError(t, store.CreateWithdrawal(ctx, withdrawal))

	updated, err := store.TransitionWithdrawal(ctx, withdrawal.ID(),
		[]withdrawals.Status{withdrawals.StatusCreated, withdrawals.StatusReserved},
		withdrawals.StatusCancelled,
	)
	require.NoError(t, err)
	assert.Equal(t, withdrawals.StatusCancelled, updated.Status())
	assert.False(t, updated.CompletedAt().IsZero())

	// Status no longer matches the guard
	_, err = store.TransitionWithdrawal(ctx, withdrawal.ID(),
		[]withdrawals.Status{withdrawals.StatusCreated, withdrawals.StatusReserved},
		withdrawals.StatusCancelled,
	)
	assert.ErrorIs(t, err, storage.ErrWithdrawalConflict)

	_, err = store.TransitionWithdrawal(ctx, uuid.New(),
		[]withdrawals.Status{withdrawals.StatusCreated}, withdrawals.StatusCancelled)
	assert.ErrorIs(t, err, storage.ErrWithdrawalNotFound)
}

func TestGetWithdrawalsByLogin(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		withdrawal, err := withdrawals.CreateWithdrawal("user1", decimal.NewFromInt(int64(10*(i+1))), withdrawals.MethodEpay)
		require.NoError(t, err)
		require.NoError(t, store.CreateWithdrawal(ctx, withdrawal))
	}

	other, err := withdrawals.CreateWithdrawal("user2", decimal.NewFromInt(5), withdrawals.MethodEpay)
	require.NoError(t, err)
	require.NoError(t, store.CreateWithdrawal(ctx, other))

	result, err := store.GetWithdrawalsByLogin(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, result, 3)

	for _, withdrawal := range result {
		assert.Equal(t, "user1", withdrawal.UserLogin())
	}
}

func TestGetWithdrawalsByStatus(t *testing.T) {
	store := NewStorage()
	ctx := context.Background()

	statuses := []withdrawals.Status{
		withdrawals.StatusCreated, withdrawals.StatusDisputed, withdrawals.StatusDisputed,
	}

	for _, status := range statuses {
		withdrawal, err := withdrawals.CreateWithdrawal("user1", decimal.NewFromInt(25), withdrawals.MethodBinance)
		require.NoError(t, err)
		require.NoError(t, store.CreateWithdrawal(ctx, withdrawal))

		if status != withdrawals.StatusCreated {
			_, err = store.TransitionWithdrawal(ctx, withdrawal.ID(),
				[]withdrawals.Status{withdrawals.StatusCreated}, withdrawals.StatusReserved)
			require.NoError(t, err)
			_, err = store.TransitionWithdrawal(ctx, withdrawal.ID(),
				[]withdrawals.Status{withdrawals.StatusReserved}, withdrawals.StatusDispatching)
			require.NoError(t, err)
			_, err = store.TransitionWithdrawal(ctx, withdrawal.ID(),
				[]withdrawals.Status{withdrawals.StatusDispatching}, withdrawals.StatusDisputed)
			require.NoError(t, err)
		}
	}

	disputed, err := store.GetWithdrawalsByStatus(ctx, withdrawals.StatusDisputed)
	require.NoError(t, err)
	assert.Len(t, disputed, 2)
}
