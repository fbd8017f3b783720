package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/ledger"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/provider"
	"github.com/maridaapp/settlement/internal/storage"
	"github.com/maridaapp/settlement/internal/storage/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter scripts one provider outcome for the whole test.
type stubAdapter struct {
	method    withdrawals.Method
	receipt   *provider.Receipt
	payoutErr error
	status    provider.Status
	statusErr error

	mu    sync.Mutex
	calls int
}

func (a *stubAdapter) Method() withdrawals.Method {
	return a.method
}

func (a *stubAdapter) Payout(_ context.Context, _ provider.PayoutRequest) (*provider.Receipt, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if a.payoutErr != nil {
		return nil, a.payoutErr
	}

	return a.receipt, nil
}

func (a *stubAdapter) PayoutStatus(_ context.Context, _ string) (provider.Status, error) {
	return a.status, a.statusErr
}

func (a *stubAdapter) ProbeReference(_ uuid.UUID, receiptRef string) string {
	return receiptRef
}

func newTestSettlement(t *testing.T, adapter provider.Adapter) (*Settlement, *inmemory.Storage) {
	t.Helper()

	store := inmemory.NewStorage()

	usr, err := users.CreateUser("user1", "user1@example.com", "password")
	require.NoError(t, err)

	usr.SetPaymentInfo(users.PaymentInfo{
		PayPalEmail:    "payout@example.com",
		BinanceAddress: "0xabc",
	})

	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, usr))
	require.NoError(t, store.Deposit(ctx, "user1", decimal.NewFromInt(1000)))

	stl := New(store, provider.NewRegistry(adapter))

	return stl, store
}

func TestRequestWithdrawal_Success(t *testing.T) {
	adapter := &stubAdapter{
		method:  withdrawals.MethodPayPal,
		receipt: &provider.Receipt{Reference: "BATCH-1", Metadata: map[string]string{"paypal_payout_batch_id": "BATCH-1"}},
	}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)
	require.NoError(t, err)

	assert.Equal(t, withdrawals.StatusSucceeded, withdrawal.Status())
	assert.Equal(t, withdrawals.ProjectionCompleted, withdrawal.Status().Projection())
	assert.Equal(t, "BATCH-1", withdrawal.ProviderRef())
	assert.False(t, withdrawal.CompletedAt().IsZero())
	assert.Equal(t, 1, adapter.calls)

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(900)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().Equal(decimal.NewFromInt(100)))
}

func TestRequestWithdrawal_InsufficientBalance(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	_, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(2000), withdrawals.MethodPayPal)
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)

	// Provider never called, balance untouched
	assert.Equal(t, 0, adapter.calls)

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().IsZero())

	// The declined attempt is recorded with a stable error code
	history, err := stl.WithdrawalHistory(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, withdrawals.StatusRejected, history[0].Status())
	assert.Equal(t, "INSUFFICIENT_BALANCE", history[0].ErrorCode())
}

func TestRequestWithdrawal_ProviderRejection(t *testing.T) {
	adapter := &stubAdapter{
		method:    withdrawals.MethodBinance,
		payoutErr: &provider.RejectionError{Code: "INVALID_ADDRESS", Message: "address checksum failed"},
	}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	_, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(100), withdrawals.MethodBinance)
	assert.ErrorIs(t, err, provider.ErrRejected)

	// Reservation released, funds spendable again
	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().IsZero())

	history, err := stl.WithdrawalHistory(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, withdrawals.StatusRejected, history[0].Status())
	assert.Equal(t, "INVALID_ADDRESS", history[0].ErrorCode())
	assert.Contains(t, history[0].ErrorMessage(), "address checksum failed")
}

func TestRequestWithdrawal_DestinationUnconfigured(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodEpay}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	// Test user has no epay account registered
	_, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(100), withdrawals.MethodEpay)
	assert.ErrorIs(t, err, provider.ErrUnconfigured)

	// Refused before any record or reservation was made
	history, err := stl.WithdrawalHistory(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, history)

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Reserved().IsZero())
}

func TestRequestWithdrawal_AmountBounds(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, _ := newTestSettlement(t, adapter)
	ctx := context.Background()

	_, err := stl.RequestWithdrawal(ctx, "user1", decimal.Zero, withdrawals.MethodPayPal)
	assert.ErrorIs(t, err, withdrawals.ErrAmountNotPositive)

	_, err = stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(5), withdrawals.MethodPayPal)
	assert.ErrorIs(t, err, ErrAmountBelowMinimum)

	_, err = stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(20000), withdrawals.MethodPayPal)
	assert.ErrorIs(t, err, ErrAmountAboveMaximum)

	assert.Equal(t, 0, adapter.calls)
}

func TestRequestWithdrawal_AmbiguousOutcome(t *testing.T) {
	adapter := &stubAdapter{
		method:    withdrawals.MethodPayPal,
		payoutErr: provider.ErrTimeout,
	}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)

	// Ambiguity is not an error to the caller: the record is parked for
	// reconciliation and reported as processing.
	require.NoError(t, err)
	assert.Equal(t, withdrawals.StatusDisputed, withdrawal.Status())
	assert.Equal(t, withdrawals.ProjectionProcessing, withdrawal.Status().Projection())
	assert.Equal(t, "PROVIDER_TIMEOUT", withdrawal.ErrorCode())

	// Funds stay held, never auto-refunded
	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().Equal(decimal.NewFromInt(100)))
}

func TestRequestWithdrawal_ConcurrentOverBalance(t *testing.T) {
	adapter := &stubAdapter{
		method:  withdrawals.MethodPayPal,
		receipt: &provider.Receipt{Reference: "BATCH-1"},
	}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	const attempts = 5

	var wg sync.WaitGroup

	results := make(chan error, attempts)

	// Balance 1000 covers only one withdrawal of 600
	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(600), withdrawals.MethodPayPal)
			results <- err
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

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, insufficient)

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(400)))
	assert.True(t, account.Reserved().IsZero())
}

func newPendingWithdrawal(
	t *testing.T, store *inmemory.Storage, status withdrawals.Status,
) *withdrawals.Withdrawal {
	t.Helper()

	ctx := context.Background()

	withdrawal, err := withdrawals.CreateWithdrawal("user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)
	require.NoError(t, err)
	require.NoError(t, store.CreateWithdrawal(ctx, withdrawal))

	if status == withdrawals.StatusCreated {
		return withdrawal
	}

	reservation, err := ledger.CreateReservation("user1", withdrawal.ID(), decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, store.Reserve(ctx, reservation))

	require.NoError(t, withdrawal.Transition(withdrawals.StatusReserved))

	if status == withdrawals.StatusDispatching {
		require.NoError(t, withdrawal.Transition(withdrawals.StatusDispatching))
	}

	require.NoError(t, store.UpdateWithdrawal(ctx, withdrawal))

	return withdrawal
}

func TestCancelWithdrawal(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal := newPendingWithdrawal(t, store, withdrawals.StatusReserved)

	cancelled, err := stl.CancelWithdrawal(ctx, "user1", withdrawal.ID())
	require.NoError(t, err)
	assert.Equal(t, withdrawals.StatusCancelled, cancelled.Status())

	// Reservation released on cancel
	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().IsZero())
}

func TestCancelWithdrawal_AlreadyDispatched(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal := newPendingWithdrawal(t, store, withdrawals.StatusDispatching)

	_, err := stl.CancelWithdrawal(ctx, "user1", withdrawal.ID())
	assert.ErrorIs(t, err, ErrCannotCancel)

	// Funds stay held for the in-flight dispatch
	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Reserved().Equal(decimal.NewFromInt(100)))
}

func TestCancelWithdrawal_NotOwned(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal := newPendingWithdrawal(t, store, withdrawals.StatusReserved)

	_, err := stl.CancelWithdrawal(ctx, "user2", withdrawal.ID())
	assert.ErrorIs(t, err, storage.ErrWithdrawalNotFound)
}

// reserveHookStorage runs a callback right after funds are reserved, opening
// the window between the reservation and the status advance.
type reserveHookStorage struct {
	*inmemory.Storage

	mu           sync.Mutex
	afterReserve func()
}

func (s *reserveHookStorage) Reserve(ctx context.Context, reservation *ledger.Reservation) error {
	if err := s.Storage.Reserve(ctx, reservation); err != nil {
		return err
	}

	s.mu.Lock()
	hook := s.afterReserve
	s.afterReserve = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	return nil
}

func TestRequestWithdrawal_CancelledWhileReserving(t *testing.T) {
	adapter := &stubAdapter{
		method:  withdrawals.MethodPayPal,
		receipt: &provider.Receipt{Reference: "BATCH-1"},
	}

	base := inmemory.NewStorage()
	ctx := context.Background()

	usr, err := users.CreateUser("user1", "user1@example.com", "password")
	require.NoError(t, err)
	require.NoError(t, base.CreateUser(ctx, usr))
	require.NoError(t, base.Deposit(ctx, "user1", decimal.NewFromInt(1000)))

	store := &reserveHookStorage{Storage: base}
	stl := New(store, provider.NewRegistry(adapter))

	// The cancel lands right after the funds are earmarked, before the
	// record advances towards dispatch. It must win.
	var cancelErr error

	store.afterReserve = func() {
		history, err := base.GetWithdrawalsByLogin(ctx, "user1")
		require.NoError(t, err)
		require.Len(t, history, 1)

		_, cancelErr = stl.CancelWithdrawal(ctx, "user1", history[0].ID())
	}

	_, err = stl.RequestWithdrawal(ctx, "user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)
	require.NoError(t, cancelErr)
	assert.ErrorIs(t, err, ErrWithdrawalCancelled)

	// The provider was never called and the cancel stands
	assert.Equal(t, 0, adapter.calls)

	history, err := base.GetWithdrawalsByLogin(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, withdrawals.StatusCancelled, history[0].Status())

	account, err := base.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().IsZero())
}

func TestCancelWithdrawal_NotFound(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, _ := newTestSettlement(t, adapter)

	_, err := stl.CancelWithdrawal(context.Background(), "user1", uuid.New())
	assert.ErrorIs(t, err, storage.ErrWithdrawalNotFound)
}

func newDisputedWithdrawal(t *testing.T, stl *Settlement) *withdrawals.Withdrawal {
	t.Helper()

	withdrawal, err := stl.RequestWithdrawal(
		context.Background(), "user1", decimal.NewFromInt(100), withdrawals.MethodPayPal)
	require.NoError(t, err)
	require.Equal(t, withdrawals.StatusDisputed, withdrawal.Status())

	return withdrawal
}

func TestResolveDisputed_Succeeded(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal, payoutErr: provider.ErrUnknown}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal := newDisputedWithdrawal(t, stl)

	resolved, err := stl.ResolveDisputed(ctx, withdrawal.ID(), withdrawals.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, withdrawals.StatusSucceeded, resolved.Status())

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(900)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().Equal(decimal.NewFromInt(100)))
}

func TestResolveDisputed_Compensated(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal, payoutErr: provider.ErrUnknown}

	stl, store := newTestSettlement(t, adapter)
	ctx := context.Background()

	withdrawal := newDisputedWithdrawal(t, stl)

	resolved, err := stl.ResolveDisputed(ctx, withdrawal.ID(), withdrawals.StatusCompensated)
	require.NoError(t, err)
	assert.Equal(t, withdrawals.StatusCompensated, resolved.Status())

	account, err := store.GetAccount(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.Reserved().IsZero())
	assert.True(t, account.Withdrawn().IsZero())
}

func TestResolveDisputed_BadOutcome(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal, payoutErr: provider.ErrUnknown}

	stl, _ := newTestSettlement(t, adapter)

	withdrawal := newDisputedWithdrawal(t, stl)

	_, err := stl.ResolveDisputed(context.Background(), withdrawal.ID(), withdrawals.StatusRejected)
	assert.ErrorIs(t, err, ErrBadResolution)
}

func TestResolveDisputed_NotDisputed(t *testing.T) {
	adapter := &stubAdapter{method: withdrawals.MethodPayPal}

	stl, store := newTestSettlement(t, adapter)

	withdrawal := newPendingWithdrawal(t, store, withdrawals.StatusReserved)

	_, err := stl.ResolveDisputed(context.Background(), withdrawal.ID(), withdrawals.StatusSucceeded)
	assert.ErrorIs(t, err, storage.ErrWithdrawalConflict)
}
