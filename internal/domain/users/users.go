package users

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserLoginEmpty  = errors.New("user login is empty")
	ErrUserEmailEmpty  = errors.New("user email is empty")
	ErrUserPasswdEmpty = errors.New("user password is empty")
)

// PaymentInfo holds the payout destinations a user has registered.
// An empty field means the method is not configured for this user.
type PaymentInfo struct {
	PayPalEmail    string
	BinanceAddress string
	EpayAccount    string
}

type User struct {
	login        string
	email        string
	passwordHash string
	paymentInfo  PaymentInfo
}

// CreateUser builds a new user from raw credentials, hashing the password.
func CreateUser(login, email, password string) (*User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := getPasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("getPasswordHash: %w", err)
	}

	return NewUser(login, email, passwordHash, PaymentInfo{})
}

// NewUser restores a user from already-persisted fields.
func NewUser(login, email, passwordHash string, paymentInfo PaymentInfo) (*User, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}

	if email == "" {
		return nil, ErrUserEmailEmpty
	}

	return &User{
		login:        login,
		email:        email,
		passwordHash: passwordHash,
		paymentInfo:  paymentInfo,
	}, nil
}

func (u *User) Login() string {
	return u.login
}

func (u *User) Email() string {
	return u.email
}

func (u *User) PasswordHash() string {
	return u.passwordHash
}

func (u *User) PaymentInfo() PaymentInfo {
	return u.paymentInfo
}

func (u *User) SetPaymentInfo(info PaymentInfo) {
	u.paymentInfo = info
}

func getPasswordHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}

	return string(hash), nil
}

func ValidateLogin(login string) error {
	if login == "" {
		return ErrUserLoginEmpty
	}

	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return ErrUserPasswdEmpty
	}

	return nil
}
