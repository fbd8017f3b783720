package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccount(t *testing.T) {
	account, err := NewAccount("user1", decimal.NewFromInt(100), decimal.NewFromInt(30), decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.Equal(t, "user1", account.UserLogin())
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(100)))
	assert.True(t, account.Reserved().Equal(decimal.NewFromInt(30)))
	assert.True(t, account.Available().Equal(decimal.NewFromInt(70)))
	assert.True(t, account.Withdrawn().Equal(decimal.NewFromInt(500)))
}

func TestNewAccount_Invariants(t *testing.T) {
	_, err := NewAccount("user1", decimal.NewFromInt(-1), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, ErrBalanceNegative)

	_, err = NewAccount("user1", decimal.NewFromInt(10), decimal.NewFromInt(-1), decimal.Zero)
	assert.ErrorIs(t, err, ErrBalanceNegative)

	_, err = NewAccount("user1", decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.Zero)
	assert.ErrorIs(t, err, ErrReservedExceeds)
}

func TestCreateReservation(t *testing.T) {
	withdrawalID := uuid.New()

	reservation, err := CreateReservation("user1", withdrawalID, decimal.NewFromInt(50))
	require.NoError(t, err)

	assert.Equal(t, "user1", reservation.UserLogin())
	assert.Equal(t, withdrawalID, reservation.WithdrawalID())
	assert.Equal(t, ReservationHeld, reservation.Status())
	assert.True(t, reservation.Amount().Equal(decimal.NewFromInt(50)))
}

func TestCreateReservation_AmountNotPositive(t *testing.T) {
	_, err := CreateReservation("user1", uuid.New(), decimal.Zero)
	assert.ErrorIs(t, err, ErrAmountNotPositive)
}
