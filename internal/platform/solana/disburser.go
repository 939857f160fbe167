package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/wavemint/wavemint/internal/domain"
)

// Treasury disburses claimed tokens through the custodial treasury service.
// Signing happens inside the treasury; this client only submits the request
// and retries transient failures.
type Treasury struct {
	endpoint string
	client   *http.Client
	maxTries uint
	logger   *slog.Logger
}

// TreasuryOption configures a Treasury.
type TreasuryOption func(*Treasury)

// WithTreasuryTimeout bounds each disbursement round trip.
func WithTreasuryTimeout(d time.Duration) TreasuryOption {
	return func(t *Treasury) {
		t.client.Timeout = d
	}
}

// WithTreasuryMaxTries sets the maximum number of submission attempts.
func WithTreasuryMaxTries(n uint) TreasuryOption {
	return func(t *Treasury) {
		t.maxTries = n
	}
}

// NewTreasury creates a Treasury client for the given endpoint.
func NewTreasury(endpoint string, logger *slog.Logger, opts ...TreasuryOption) *Treasury {
	t := &Treasury{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		maxTries: defaultMaxTries,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type disburseRequest struct {
	RequestID     string `json:"request_id"`
	MintID        string `json:"mint_id"`
	BeneficiaryID string `json:"beneficiary_id"`
	TokenAmount   uint64 `json:"token_amount"`
}

type disburseResponse struct {
	Accepted  bool   `json:"accepted"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// Disburse submits a transfer of tokenAmount tokens of the given mint to the
// beneficiary. A fresh request ID makes retries idempotent on the treasury
// side.
func (t *Treasury) Disburse(ctx context.Context, mintID, beneficiaryID string, tokenAmount uint64) error {
	body, err := json.Marshal(disburseRequest{
		RequestID:     uuid.NewString(),
		MintID:        mintID,
		BeneficiaryID: beneficiaryID,
		TokenAmount:   tokenAmount,
	})
	if err != nil {
		return fmt.Errorf("solana: encode disburse request: %w", err)
	}

	operation := func() (disburseResponse, error) {
		return t.submit(ctx, body)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultRetryDelay

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(t.maxTries),
	)
	if err != nil {
		return fmt.Errorf("solana: disburse %d to %s: %w", tokenAmount, beneficiaryID, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("solana: disburse rejected: %s", resp.Error)
	}

	t.logger.InfoContext(ctx, "disbursement accepted",
		slog.String("mint_id", mintID),
		slog.String("beneficiary_id", beneficiaryID),
		slog.Uint64("token_amount", tokenAmount),
		slog.String("signature", resp.Signature),
	)
	return nil
}

func (t *Treasury) submit(ctx context.Context, body []byte) (disburseResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return disburseResponse{}, backoff.Permanent(fmt.Errorf("solana: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(req)
	if err != nil {
		return disburseResponse{}, fmt.Errorf("solana: treasury request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return disburseResponse{}, fmt.Errorf("solana: read treasury response: %w", err)
	}
	if httpResp.StatusCode >= 500 {
		return disburseResponse{}, fmt.Errorf("solana: treasury status %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		return disburseResponse{}, backoff.Permanent(fmt.Errorf("solana: treasury status %d", httpResp.StatusCode))
	}

	var resp disburseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return disburseResponse{}, fmt.Errorf("solana: decode treasury response: %w", err)
	}
	return resp, nil
}

var _ domain.Disburser = (*Treasury)(nil)
