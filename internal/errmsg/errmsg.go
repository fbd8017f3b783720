package errmsg

import (
	"errors"
	"net/http"
)

type HTTPError struct {
	Code    int
	Message error
}

func NewHTTPError(code int, message error) HTTPError {
	return HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	return e.Message.Error()
}

var (
	ErrRequestPayloadEmpty = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is empty"),
	)

	ErrRequestPayloadInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is invalid"),
	)
)

var (
	ErrUserAlreadyExists = NewHTTPError(
		http.StatusConflict,
		errors.New("user already exists"),
	)

	ErrUserNotFound = NewHTTPError(
		http.StatusNotFound,
		errors.New("user not found"),
	)

	ErrUserCredentialsInvalid = NewHTTPError(
		http.StatusUnauthorized,
		errors.New("user credentials invalid"),
	)
)

var (
	ErrInsufficientBalance = NewHTTPError(
		http.StatusPaymentRequired,
		errors.New("account balance not enough funds"),
	)

	ErrWithdrawalMethodInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("withdrawal method must be one of: paypal, binance, epay"),
	)

	ErrWithdrawalDestinationMissing = NewHTTPError(
		http.StatusBadRequest,
		errors.New("no payout destination configured for this withdrawal method"),
	)

	ErrWithdrawalNotFound = NewHTTPError(
		http.StatusNotFound,
		errors.New("withdrawal not found"),
	)

	ErrWithdrawalNotCancellable = NewHTTPError(
		http.StatusBadRequest,
		errors.New("only pending withdrawals can be cancelled"),
	)

	ErrWithdrawalDeclined = NewHTTPError(
		http.StatusBadRequest,
		errors.New("withdrawal declined by payout provider"),
	)
)
