// Package epay adapts the ePay merchant payout API to the provider capability.
package epay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/httpclient"
	"github.com/maridaapp/settlement/internal/provider"
)

type Config struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	Timeout    time.Duration
}

type Adapter struct {
	log    *slog.Logger
	client *resty.Client
	cfg    Config
}

func New(cfg Config, opts ...Option) *Adapter {
	adapter := &Adapter{
		log: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		client: httpclient.New(
			httpclient.WithBaseURL(cfg.BaseURL),
			httpclient.WithTimeout(cfg.Timeout),
		),
		cfg: cfg,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

type Option func(a *Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.log = logger.With(slog.String("module", "epay_adapter"))
	}
}

func WithClient(client *resty.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

func (a *Adapter) Method() withdrawals.Method {
	return withdrawals.MethodEpay
}

type payoutPayload struct {
	MerchantID  string  `json:"merchant_id"`
	APIKey      string  `json:"api_key"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Recipient   string  `json:"recipient"`
	Reference   string  `json:"reference"`
	Description string  `json:"description"`
}

type payoutResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
}

func (a *Adapter) Payout(ctx context.Context, req provider.PayoutRequest) (*provider.Receipt, error) {
	payload := payoutPayload{
		MerchantID:  a.cfg.MerchantID,
		APIKey:      a.cfg.APIKey,
		Amount:      req.Amount.InexactFloat64(),
		Currency:    req.Currency,
		Recipient:   req.Destination,
		Reference:   req.WithdrawalID.String(),
		Description: "Marida App earnings withdrawal",
	}

	result := new(payoutResult)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(result).
		Post("/payouts")
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK && result.Success:
		return &provider.Receipt{
			Reference: result.TransactionID,
			Metadata: map[string]string{
				"epay_transaction_id": result.TransactionID,
				"epay_status":         result.Status,
			},
		}, nil

	case resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError,
		resp.StatusCode() == http.StatusOK && !result.Success:
		return nil, &provider.RejectionError{
			Code:    result.ErrorCode,
			Message: result.Message,
		}
	}

	return nil, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
}

// ProbeReference returns the stored transaction id. ePay assigns it
// server-side, so a payout that never answered cannot be probed.
func (a *Adapter) ProbeReference(_ uuid.UUID, receiptRef string) string {
	return receiptRef
}

func (a *Adapter) PayoutStatus(ctx context.Context, reference string) (provider.Status, error) {
	result := new(payoutResult)

	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(result).
		SetPathParams(map[string]string{
			"transactionId": reference,
		}).
		Get("/payouts/{transactionId}")
	if err != nil {
		return provider.StatusUnknown, provider.ClassifyTransportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return provider.StatusUnknown, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
	}

	switch result.Status {
	case "completed", "paid":
		return provider.StatusSucceeded, nil
	case "failed", "rejected", "refunded":
		return provider.StatusFailed, nil
	case "pending", "processing":
		return provider.StatusPending, nil
	}

	return provider.StatusUnknown, nil
}
