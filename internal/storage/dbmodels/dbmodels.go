package dbmodels

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	Login          string
	Email          string
	PasswordHash   string
	PayPalEmail    sql.NullString
	BinanceAddress sql.NullString
	EpayAccount    sql.NullString
}

type LedgerAccount struct {
	Login     string
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Withdrawn decimal.Decimal
}

type Reservation struct {
	ID           string
	Login        string
	WithdrawalID string
	Amount       decimal.Decimal
	Status       string
	CreatedAt    time.Time
}

type LedgerEntry struct {
	Login        string
	EntryType    string
	Amount       decimal.Decimal
	WithdrawalID string
	CreatedAt    time.Time
}

type Withdrawal struct {
	ID           string
	Login        string
	Amount       decimal.Decimal
	Currency     string
	Method       string
	Status       string
	ProviderRef  sql.NullString
	ProviderMeta []byte
	ErrorCode    sql.NullString
	ErrorMessage sql.NullString
	CreatedAt    time.Time
	CompletedAt  sql.NullTime
}
