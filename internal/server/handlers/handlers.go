package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/auth"
	"github.com/maridaapp/settlement/internal/domain/users"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/errmsg"
	"github.com/maridaapp/settlement/internal/provider"
	"github.com/maridaapp/settlement/internal/server/models"
	"github.com/maridaapp/settlement/internal/settlement"
	"github.com/maridaapp/settlement/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type Handlers struct {
	storage    storage.Storage
	settlement *settlement.Settlement
	log        *slog.Logger
	auth       *auth.JWTAuth
}

// NewHandlers returns a new Handlers instance.
func NewHandlers(store storage.Storage, stl *settlement.Settlement, opts ...Option) *Handlers {
	handlers := &Handlers{
		storage:    store,
		settlement: stl,
		log:        slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		auth:       auth.NewJWTAuth([]byte("")),
	}

	// Apply options
	for _, opt := range opts {
		opt(handlers)
	}

	return handlers
}

// Option is a functional option for Handlers.
type Option func(h *Handlers)

// WithLogger is a option for Handlers that sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.log = logger
	}
}

func WithAuth(auth *auth.JWTAuth) Option {
	return func(h *Handlers) {
		h.auth = auth
	}
}

type JSONResponse struct {
	Message any `json:"message,omitempty"`
	Error   any `json:"error,omitempty"`
}

func handleJSONResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, err errmsg.HTTPError) {
	resp := &JSONResponse{
		Error: err.Error(),
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(err.Code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.log.Error("storage.Ping", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) UserRegister(w http.ResponseWriter, r *http.Request) {
	var userPayload models.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&userPayload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

		return
	}

	defer r.Body.Close()

	user, err := users.CreateUser(userPayload.Login, userPayload.Email, userPayload.Password)
	if err != nil {
		h.log.Error("users.CreateUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

		return
	}

	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.log.Error("storage.CreateUser()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserAlreadyExists)

			return
		}

		h.log.Error("storage.CreateUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	token, err := h.auth.CreateJWTString(user.Login())
	if err != nil {
		h.log.Error("jwtauth.CreateJWTString()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.Header().Set("content-type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token)) //nolint:errcheck
}

func (h *Handlers) UserLogin(w http.ResponseWriter, r *http.Request) {
	var userPayload models.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&userPayload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, err := h.storage.GetUser(r.Context(), userPayload.Login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.log.Error("storage.GetUser()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserNotFound)

			return
		}

		h.log.Error("storage.GetUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(userPayload.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			h.log.Error("bcrypt.CompareHashAndPassword()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserCredentialsInvalid)

			return
		}

		h.log.Error("bcrypt.CompareHashAndPassword()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	token, err := h.auth.CreateJWTString(user.Login())
	if err != nil {
		h.log.Error("jwtauth.CreateJWTString()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.Header().Set("content-type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token)) //nolint:errcheck
}

// UpdatePaymentInfo registers the user's payout destinations. The full set
// is replaced on every call; an omitted field clears the destination.
func (h *Handlers) UpdatePaymentInfo(w http.ResponseWriter, r *http.Request) {
	userLogin, ok := h.userLoginFromJWT(w, r)
	if !ok {
		return
	}

	var payload models.PaymentInfoRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	info := users.PaymentInfo{
		PayPalEmail:    payload.PayPalEmail,
		BinanceAddress: payload.BinanceAddress,
		EpayAccount:    payload.EpayAccount,
	}

	if err := h.storage.UpdateUserPaymentInfo(r.Context(), userLogin, info); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.log.Error("storage.UpdateUserPaymentInfo()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserNotFound)

			return
		}

		h.log.Error("storage.UpdateUserPaymentInfo()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	userLogin, ok := h.userLoginFromJWT(w, r)
	if !ok {
		return
	}

	account, err := h.storage.GetAccount(r.Context(), userLogin)
	if err != nil {
		h.log.Error("storage.GetAccount()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	resp := models.BalanceResponse{
		Current:   account.Balance().InexactFloat64(),
		Reserved:  account.Reserved().InexactFloat64(),
		Available: account.Available().InexactFloat64(),
		Withdrawn: account.Withdrawn().InexactFloat64(),
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

// CreateWithdrawal runs a withdrawal request through the settlement flow.
// An ambiguous provider outcome is not an error here: the client gets the
// record with a processing status and the reconciler takes it from there.
func (h *Handlers) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userLogin, ok := h.userLoginFromJWT(w, r)
	if !ok {
		return
	}

	var payload models.WithdrawalRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	method, err := withdrawals.ParseMethod(payload.Method)
	if err != nil {
		h.log.Error("withdrawals.ParseMethod()", slog.Any("error", err))
		handleError(w, errmsg.ErrWithdrawalMethodInvalid)

		return
	}

	withdrawal, err := h.settlement.RequestWithdrawal(r.Context(), userLogin, payload.Amount, method)
	if err != nil {
		h.handleWithdrawalError(w, err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, withdrawalResponse(withdrawal))
}

func (h *Handlers) handleWithdrawalError(w http.ResponseWriter, err error) {
	h.log.Error("settlement.RequestWithdrawal()", slog.Any("error", err))

	switch {
	case errors.Is(err, withdrawals.ErrAmountNotPositive),
		errors.Is(err, settlement.ErrAmountBelowMinimum),
		errors.Is(err, settlement.ErrAmountAboveMaximum):
		handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

	case errors.Is(err, storage.ErrUserNotFound):
		handleError(w, errmsg.ErrUserNotFound)

	case errors.Is(err, provider.ErrUnconfigured):
		handleError(w, errmsg.ErrWithdrawalDestinationMissing)

	case errors.Is(err, provider.ErrMethodNotRegistered):
		handleError(w, errmsg.ErrWithdrawalMethodInvalid)

	case errors.Is(err, storage.ErrInsufficientBalance):
		handleError(w, errmsg.ErrInsufficientBalance)

	case errors.Is(err, provider.ErrRejected):
		handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

	case errors.Is(err, settlement.ErrWithdrawalCancelled):
		handleError(w, errmsg.NewHTTPError(http.StatusConflict, err))

	default:
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))
	}
}

func (h *Handlers) GetUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	userLogin, ok := h.userLoginFromJWT(w, r)
	if !ok {
		return
	}

	userWithdrawals, err := h.settlement.WithdrawalHistory(r.Context(), userLogin)
	if err != nil {
		h.log.Error("settlement.WithdrawalHistory()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	if len(userWithdrawals) == 0 {
		handleJSONResponse(w, http.StatusNoContent, []models.WithdrawalResponse{})

		return
	}

	resp := make([]models.WithdrawalResponse, len(userWithdrawals))
	for i, withdrawal := range userWithdrawals {
		resp[i] = withdrawalResponse(withdrawal)
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	userLogin, ok := h.userLoginFromJWT(w, r)
	if !ok {
		return
	}

	withdrawalID, err := uuid.Parse(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		h.log.Error("uuid.Parse()", slog.Any("error", err))
		handleError(w, errmsg.ErrWithdrawalNotFound)

		return
	}

	withdrawal, err := h.settlement.CancelWithdrawal(r.Context(), userLogin, withdrawalID)
	if err != nil {
		h.log.Error("settlement.CancelWithdrawal()", slog.Any("error", err))

		switch {
		case errors.Is(err, storage.ErrWithdrawalNotFound):
			handleError(w, errmsg.ErrWithdrawalNotFound)

		case errors.Is(err, settlement.ErrCannotCancel):
			handleError(w, errmsg.ErrWithdrawalNotCancellable)

		default:
			handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))
		}

		return
	}

	handleJSONResponse(w, http.StatusOK, withdrawalResponse(withdrawal))
}

func (h *Handlers) userLoginFromJWT(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		h.log.Error("jwtauth.FromContext()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return "", false
	}

	// Set user login from JWT sub claim field
	return token.Subject(), true
}

func withdrawalResponse(withdrawal *withdrawals.Withdrawal) models.WithdrawalResponse {
	resp := models.WithdrawalResponse{
		ID:           withdrawal.ID().String(),
		Amount:       withdrawal.Amount().InexactFloat64(),
		Currency:     withdrawal.Currency(),
		Method:       withdrawal.Method(),
		Status:       withdrawal.Status().Projection(),
		ErrorCode:    withdrawal.ErrorCode(),
		ErrorMessage: withdrawal.ErrorMessage(),
		RequestDate:  withdrawal.CreatedAt().Format(time.RFC3339),
	}

	if !withdrawal.CompletedAt().IsZero() {
		resp.CompletionDate = withdrawal.CompletedAt().Format(time.RFC3339)
	}

	return resp
}
