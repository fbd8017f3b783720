// Package paypal adapts the PayPal Payouts API to the provider capability.
package paypal

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
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
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

	adapter.client.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	return adapter
}

type Option func(a *Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.log = logger.With(slog.String("module", "paypal_adapter"))
	}
}

func WithClient(client *resty.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

func (a *Adapter) Method() withdrawals.Method {
	return withdrawals.MethodPayPal
}

type payoutBatch struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	SenderItemID  string       `json:"sender_item_id"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note"`
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutResult struct {
	BatchHeader batchHeader `json:"batch_header"`
}

type batchHeader struct {
	PayoutBatchID string `json:"payout_batch_id"`
	BatchStatus   string `json:"batch_status"`
}

type errorResult struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (a *Adapter) Payout(ctx context.Context, req provider.PayoutRequest) (*provider.Receipt, error) {
	batch := payoutBatch{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: "payout_" + req.WithdrawalID.String(),
			EmailSubject:  "You have a payment from Marida App",
		},
		Items: []payoutItem{{
			RecipientType: "EMAIL",
			Amount: payoutAmount{
				Value:    req.Amount.StringFixed(2),
				Currency: req.Currency,
			},
			SenderItemID: req.WithdrawalID.String(),
			Receiver:     req.Destination,
			Note:         "Marida App earnings withdrawal",
		}},
	}

	result := new(payoutResult)
	errResult := new(errorResult)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(batch).
		SetResult(result).
		SetError(errResult).
		Post("/v1/payments/payouts")
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}

	switch {
	case resp.StatusCode() == http.StatusCreated:
		return &provider.Receipt{
			Reference: result.BatchHeader.PayoutBatchID,
			Metadata: map[string]string{
				"paypal_payout_batch_id": result.BatchHeader.PayoutBatchID,
				"paypal_batch_status":    result.BatchHeader.BatchStatus,
			},
		}, nil

	case resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError:
		return nil, &provider.RejectionError{
			Code:    errResult.Name,
			Message: errResult.Message,
		}
	}

	return nil, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
}

// ProbeReference returns the stored batch id. PayPal assigns it server-side,
// so a payout that never answered cannot be probed.
func (a *Adapter) ProbeReference(_ uuid.UUID, receiptRef string) string {
	return receiptRef
}

func (a *Adapter) PayoutStatus(ctx context.Context, reference string) (provider.Status, error) {
	result := new(payoutResult)

	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(result).
		SetPathParams(map[string]string{
			"payoutBatchId": reference,
		}).
		Get("/v1/payments/payouts/{payoutBatchId}")
	if err != nil {
		return provider.StatusUnknown, provider.ClassifyTransportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return provider.StatusUnknown, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
	}

	switch result.BatchHeader.BatchStatus {
	case "SUCCESS":
		return provider.StatusSucceeded, nil
	case "DENIED", "CANCELED", "RETURNED":
		return provider.StatusFailed, nil
	case "PENDING", "PROCESSING", "NEW":
		return provider.StatusPending, nil
	}

	return provider.StatusUnknown, nil
}
