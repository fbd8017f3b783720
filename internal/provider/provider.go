// Package provider normalizes the external payout processors behind one
// capability: send an amount to a destination account and report a receipt.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnconfigured: the user has no destination registered for the method.
	ErrUnconfigured = errors.New("payout destination not configured")

	// ErrRejected: the provider explicitly declined. Definite failure,
	// never retried within the same attempt.
	ErrRejected = errors.New("payout rejected by provider")

	// ErrTimeout: the request may or may not have reached the provider.
	// Callers must not assume failure.
	ErrTimeout = errors.New("payout provider timed out")

	// ErrUnknown: the provider answered something unclassifiable.
	// Treated like ErrTimeout: the outcome is ambiguous.
	ErrUnknown = errors.New("payout provider outcome unknown")

	ErrMethodNotRegistered = errors.New("no payout adapter registered for method")
)

// RejectionError carries the provider's decline code and reason.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// PayoutRequest is the normalized payout instruction handed to an adapter.
type PayoutRequest struct {
	WithdrawalID uuid.UUID
	Destination  string
	Amount       decimal.Decimal
	Currency     string
}

// Receipt is the opaque confirmation metadata returned by a provider.
type Receipt struct {
	Reference string
	Metadata  map[string]string
}

// Status is a provider-side payout state reported by a status probe.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

func (s Status) String() string {
	return string(s)
}

// Adapter wraps one external payout processor. Implementations own the
// provider-specific payload shape and bound every call with a timeout.
type Adapter interface {
	Method() withdrawals.Method

	// Payout sends the amount to the destination. A nil error means the
	// provider confirmed the payout. Failure errors wrap ErrRejected,
	// ErrTimeout or ErrUnknown.
	Payout(ctx context.Context, req PayoutRequest) (*Receipt, error)

	// PayoutStatus probes the provider for the outcome of an earlier payout,
	// identified by the reference from ProbeReference. Used by reconciliation.
	PayoutStatus(ctx context.Context, reference string) (Status, error)

	// ProbeReference resolves what PayoutStatus can be queried with.
	// receiptRef is the stored receipt reference, empty when the dispatch
	// died before the provider answered. Providers whose status endpoint
	// keys on a client-assigned id can still produce a reference from the
	// withdrawal id; an empty result means the outcome cannot be probed
	// and the record is left to operator resolution.
	ProbeReference(withdrawalID uuid.UUID, receiptRef string) string
}

// Registry selects an adapter by withdrawal method. Adding a provider means
// registering one more adapter; orchestration logic stays untouched.
type Registry struct {
	adapters map[withdrawals.Method]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[withdrawals.Method]Adapter, len(adapters)),
	}

	for _, a := range adapters {
		r.adapters[a.Method()] = a
	}

	return r
}

func (r *Registry) Adapter(method withdrawals.Method) (Adapter, error) {
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotRegistered, method)
	}

	return adapter, nil
}

// Destination resolves the payout destination for a method from the user's
// registered payment info. PayPal falls back to the account email; the other
// methods require an explicit destination.
func Destination(usr *users.User, method withdrawals.Method) (string, error) {
	info := usr.PaymentInfo()

	switch method {
	case withdrawals.MethodPayPal:
		if info.PayPalEmail != "" {
			return info.PayPalEmail, nil
		}

		return usr.Email(), nil

	case withdrawals.MethodBinance:
		if info.BinanceAddress == "" {
			return "", fmt.Errorf("%w: %s", ErrUnconfigured, method)
		}

		return info.BinanceAddress, nil

	case withdrawals.MethodEpay:
		if info.EpayAccount == "" {
			return "", fmt.Errorf("%w: %s", ErrUnconfigured, method)
		}

		return info.EpayAccount, nil
	}

	return "", fmt.Errorf("%w: %s", withdrawals.ErrMethodInvalid, method)
}

// ClassifyTransportError maps a failed round trip to the ambiguity taxonomy:
// timeouts and context expiry become ErrTimeout, anything else ErrUnknown.
func ClassifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %s", ErrUnknown, err)
}
