package models

import (
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type PaymentInfoRequest struct {
	PayPalEmail    string `json:"paypal_email"`
	BinanceAddress string `json:"binance_address"`
	EpayAccount    string `json:"epay_account"`
}

type BalanceResponse struct {
	Current   float64 `json:"current"`
	Reserved  float64 `json:"reserved"`
	Available float64 `json:"available"`
	Withdrawn float64 `json:"withdrawn"`
}

type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// WithdrawalResponse is the user-facing projection of a withdrawal record.
type WithdrawalResponse struct {
	ID             string                       `json:"id"`
	Amount         float64                      `json:"amount"`
	Currency       string                       `json:"currency"`
	Method         withdrawals.Method           `json:"method"`
	Status         withdrawals.ProjectionStatus `json:"status"`
	ErrorCode      string                       `json:"error_code,omitempty"`
	ErrorMessage   string                       `json:"error_message,omitempty"`
	RequestDate    string                       `json:"request_date"`
	CompletionDate string                       `json:"completion_date,omitempty"`
}
