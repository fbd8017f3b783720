package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(t *testing.T, info users.PaymentInfo) *users.User {
	t.Helper()

	usr, err := users.CreateUser("user1", "user1@example.com", "password")
	require.NoError(t, err)

	usr.SetPaymentInfo(info)

	return usr
}

func TestDestination(t *testing.T) {
	usr := newTestUser(t, users.PaymentInfo{
		PayPalEmail:    "payout@example.com",
		BinanceAddress: "0xabc",
		EpayAccount:    "acc-7",
	})

	dest, err := Destination(usr, withdrawals.MethodPayPal)
	require.NoError(t, err)
	assert.Equal(t, "payout@example.com", dest)

	dest, err = Destination(usr, withdrawals.MethodBinance)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", dest)

	dest, err = Destination(usr, withdrawals.MethodEpay)
	require.NoError(t, err)
	assert.Equal(t, "acc-7", dest)
}

func TestDestination_PayPalFallsBackToAccountEmail(t *testing.T) {
	usr := newTestUser(t, users.PaymentInfo{})

	dest, err := Destination(usr, withdrawals.MethodPayPal)
	require.NoError(t, err)
	assert.Equal(t, "user1@example.com", dest)
}

func TestDestination_Unconfigured(t *testing.T) {
	usr := newTestUser(t, users.PaymentInfo{})

	_, err := Destination(usr, withdrawals.MethodBinance)
	assert.ErrorIs(t, err, ErrUnconfigured)

	_, err = Destination(usr, withdrawals.MethodEpay)
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestClassifyTransportError(t *testing.T) {
	err := ClassifyTransportError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)

	err = ClassifyTransportError(errors.New("connection reset by peer"))
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestRejectionError(t *testing.T) {
	var err error = &RejectionError{Code: "INVALID_ADDRESS", Message: "bad checksum"}

	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "INVALID_ADDRESS: bad checksum", err.Error())

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "INVALID_ADDRESS", rejection.Code)
}

func TestRegistry(t *testing.T) {
	_, err := NewRegistry().Adapter(withdrawals.MethodPayPal)
	assert.ErrorIs(t, err, ErrMethodNotRegistered)
}
