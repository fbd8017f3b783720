// Package binance adapts the Binance capital withdraw API to the provider
// capability. Payouts leave as USDT over BSC, matching what the destination
// addresses users register are.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/maridaapp/settlement/internal/domain/withdrawals"
	"github.com/maridaapp/settlement/internal/httpclient"
	"github.com/maridaapp/settlement/internal/provider"
)

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
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

	adapter.client.SetHeader("X-MBX-APIKEY", cfg.APIKey)

	return adapter
}

type Option func(a *Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.log = logger.With(slog.String("module", "binance_adapter"))
	}
}

func WithClient(client *resty.Client) Option {
	return func(a *Adapter) {
		a.client = client
	}
}

func (a *Adapter) Method() withdrawals.Method {
	return withdrawals.MethodBinance
}

type withdrawResult struct {
	ID string `json:"id"`
}

type withdrawRecord struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type errorResult struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// sign appends the HMAC-SHA256 signature Binance requires on signed endpoints.
func (a *Adapter) sign(params url.Values) url.Values {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	mac := hmac.New(sha256.New, []byte(a.cfg.APISecret))
	mac.Write([]byte(params.Encode()))

	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))

	return params
}

func (a *Adapter) Payout(ctx context.Context, req provider.PayoutRequest) (*provider.Receipt, error) {
	params := url.Values{}
	params.Set("coin", "USDT")
	params.Set("network", "BSC")
	params.Set("address", req.Destination)
	params.Set("amount", req.Amount.String())
	params.Set("withdrawOrderId", req.WithdrawalID.String())

	result := new(withdrawResult)
	errResult := new(errorResult)

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(a.sign(params)).
		SetResult(result).
		SetError(errResult).
		Post("/sapi/v1/capital/withdraw/apply")
	if err != nil {
		return nil, provider.ClassifyTransportError(err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK && result.ID != "":
		return &provider.Receipt{
			Reference: req.WithdrawalID.String(),
			Metadata: map[string]string{
				"binance_withdraw_id": result.ID,
			},
		}, nil

	case resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError:
		return nil, &provider.RejectionError{
			Code:    strconv.Itoa(errResult.Code),
			Message: errResult.Message,
		}
	}

	return nil, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
}

// ProbeReference always resolves: the withdraw order id is client-assigned
// from the withdrawal id, so even a dispatch that died before Binance
// answered can be probed.
func (a *Adapter) ProbeReference(withdrawalID uuid.UUID, _ string) string {
	return withdrawalID.String()
}

func (a *Adapter) PayoutStatus(ctx context.Context, reference string) (provider.Status, error) {
	params := url.Values{}
	params.Set("withdrawOrderId", reference)

	var records []withdrawRecord

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(a.sign(params)).
		SetResult(&records).
		Get("/sapi/v1/capital/withdraw/history")
	if err != nil {
		return provider.StatusUnknown, provider.ClassifyTransportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return provider.StatusUnknown, fmt.Errorf("%w: unexpected status %d", provider.ErrUnknown, resp.StatusCode())
	}

	if len(records) == 0 {
		// The order never reached Binance.
		return provider.StatusFailed, nil
	}

	// https://binance-docs.github.io/apidocs/spot/en/#withdraw-history
	switch records[0].Status {
	case 6: // completed
		return provider.StatusSucceeded, nil
	case 1, 3, 5: // cancelled, rejected, failure
		return provider.StatusFailed, nil
	case 0, 2, 4: // email sent, awaiting approval, processing
		return provider.StatusPending, nil
	}

	return provider.StatusUnknown, nil
}
