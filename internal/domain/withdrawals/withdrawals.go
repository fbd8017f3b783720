//nolint:wrapcheck
package withdrawals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotPositive  = errors.New("withdrawal amount must be positive")
	ErrMethodInvalid      = errors.New("withdrawal method is invalid")
	ErrInvalidTransition  = errors.New("invalid withdrawal status transition")
	ErrReceiptUnavailable = errors.New("withdrawal has no provider receipt")
)

// Method identifies the external payout processor handling a withdrawal.
type Method string

const (
	MethodPayPal  Method = "paypal"
	MethodBinance Method = "binance"
	MethodEpay    Method = "epay"
)

func ParseMethod(method string) (Method, error) {
	switch Method(method) {
	case MethodPayPal, MethodBinance, MethodEpay:
		return Method(method), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMethodInvalid, method)
	}
}

func (m Method) String() string {
	return string(m)
}

type Status string

const (
	// StatusCreated: record persisted, no funds touched yet.
	StatusCreated Status = "created"

	// StatusReserved: funds are earmarked but not yet debited.
	StatusReserved Status = "reserved"

	// StatusDispatching: provider call in flight.
	StatusDispatching Status = "dispatching"

	// StatusSucceeded: provider confirmed the payout, reservation committed.
	StatusSucceeded Status = "succeeded"

	// StatusRejected: provider definitely declined, reservation released.
	StatusRejected Status = "rejected"

	// StatusDisputed: provider outcome unknown; the reservation stays held
	// until reconciliation resolves it. Never auto-refunded.
	StatusDisputed Status = "disputed"

	// StatusCompensated: resolved failure, funds confirmed returned.
	StatusCompensated Status = "compensated"

	// StatusCancelled: withdrawn by the user before dispatch.
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// transitions is the complete set of legal state machine edges.
// No transition skips a state.
var transitions = map[Status][]Status{
	StatusCreated:     {StatusReserved, StatusRejected, StatusCancelled},
	StatusReserved:    {StatusDispatching, StatusCancelled},
	StatusDispatching: {StatusSucceeded, StatusRejected, StatusDisputed},
	StatusDisputed:    {StatusSucceeded, StatusCompensated},
	StatusRejected:    {StatusCompensated},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}

	return false
}

// Terminal reports whether no further transition is expected. Rejected is
// terminal in practice (funds already released); its edge to compensated
// exists for operator resolution tooling only.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusRejected, StatusCompensated, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProjectionStatus is the denormalized, user-facing view of a status.
type ProjectionStatus string

const (
	ProjectionPending    ProjectionStatus = "pending"
	ProjectionProcessing ProjectionStatus = "processing"
	ProjectionCompleted  ProjectionStatus = "completed"
	ProjectionFailed     ProjectionStatus = "failed"
	ProjectionCancelled  ProjectionStatus = "cancelled"
)

func (s Status) Projection() ProjectionStatus {
	switch s {
	case StatusCreated, StatusReserved:
		return ProjectionPending
	case StatusDispatching, StatusDisputed:
		return ProjectionProcessing
	case StatusSucceeded:
		return ProjectionCompleted
	case StatusCancelled:
		return ProjectionCancelled
	default:
		return ProjectionFailed
	}
}

// Withdrawal is the durable record of one withdrawal attempt end-to-end.
// It is the source of truth for the user-facing pending withdrawals view.
type Withdrawal struct {
	id           uuid.UUID
	userLogin    string
	amount       decimal.Decimal
	currency     string
	method       Method
	status       Status
	providerRef  string
	providerMeta map[string]string
	errorCode    string
	errorMessage string
	createdAt    time.Time
	completedAt  time.Time
}

// CreateWithdrawal builds a fresh withdrawal in the created state.
func CreateWithdrawal(userLogin string, amount decimal.Decimal, method Method) (*Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}

	return NewWithdrawal(
		uuid.New(), userLogin, amount, "USD", method,
		StatusCreated, "", nil, "", "", time.Now(), time.Time{},
	)
}

// NewWithdrawal restores a withdrawal from already-persisted fields.
func NewWithdrawal(
	id uuid.UUID, userLogin string, amount decimal.Decimal, currency string, method Method,
	status Status, providerRef string, providerMeta map[string]string,
	errorCode, errorMessage string, createdAt, completedAt time.Time,
) (*Withdrawal, error) {
	if err := users.ValidateLogin(userLogin); err != nil {
		return nil, err
	}

	if _, err := ParseMethod(method.String()); err != nil {
		return nil, err
	}

	return &Withdrawal{
		id:           id,
		userLogin:    userLogin,
		amount:       amount,
		currency:     currency,
		method:       method,
		status:       status,
		providerRef:  providerRef,
		providerMeta: providerMeta,
		errorCode:    errorCode,
		errorMessage: errorMessage,
		createdAt:    createdAt,
		completedAt:  completedAt,
	}, nil
}

func (w *Withdrawal) ID() uuid.UUID {
	return w.id
}

func (w *Withdrawal) UserLogin() string {
	return w.userLogin
}

func (w *Withdrawal) Amount() decimal.Decimal {
	return w.amount
}

func (w *Withdrawal) Currency() string {
	return w.currency
}

func (w *Withdrawal) Method() Method {
	return w.method
}

func (w *Withdrawal) Status() Status {
	return w.status
}

func (w *Withdrawal) ProviderRef() string {
	return w.providerRef
}

func (w *Withdrawal) ProviderMeta() map[string]string {
	return w.providerMeta
}

func (w *Withdrawal) ErrorCode() string {
	return w.errorCode
}

func (w *Withdrawal) ErrorMessage() string {
	return w.errorMessage
}

func (w *Withdrawal) CreatedAt() time.Time {
	return w.createdAt
}

func (w *Withdrawal) CompletedAt() time.Time {
	return w.completedAt
}

// Transition moves the withdrawal to the given status, enforcing the state
// machine. Terminal statuses stamp the completion time.
func (w *Withdrawal) Transition(to Status) error {
	if !w.status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.status, to)
	}

	w.status = to

	if to.Terminal() && w.completedAt.IsZero() {
		w.completedAt = time.Now()
	}

	return nil
}

// SetReceipt stores the opaque provider receipt on the record.
func (w *Withdrawal) SetReceipt(reference string, metadata map[string]string) {
	w.providerRef = reference
	w.providerMeta = metadata
}

// SetError stores the stable error code and human-readable reason.
func (w *Withdrawal) SetError(code, message string) {
	w.errorCode = code
	w.errorMessage = message
}
