// Package solana implements the value-transfer verifier against a Solana
// JSON-RPC node. Settlement only trusts transfers this package confirms.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wavemint/wavemint/internal/domain"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxTries   = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Verifier confirms on-chain transfers by fetching the referenced
// transaction over HTTP JSON-RPC 2.0 and checking the balance movement
// against the custodial account.
type Verifier struct {
	endpoint  string
	custodial string
	client    *http.Client
	maxTries  uint
	requestID atomic.Uint64
	logger    *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout bounds each verification RPC round trip.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.client.Timeout = d
	}
}

// WithMaxTries sets the maximum number of RPC attempts per verification.
func WithMaxTries(n uint) Option {
	return func(v *Verifier) {
		v.maxTries = n
	}
}

// NewVerifier creates a Verifier for the given RPC endpoint. custodial is the
// platform account that must appear on the receiving side of a buy transfer.
func NewVerifier(endpoint, custodial string, logger *slog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		endpoint:  endpoint,
		custodial: custodial,
		client:    &http.Client{Timeout: defaultTimeout},
		maxTries:  defaultMaxTries,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// tokenBalance is one entry of meta.preTokenBalances/postTokenBalances.
type tokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

type getTransactionResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Error   *rpcError `json:"error"`
	Result  *struct {
		Meta *struct {
			Err               any            `json:"err"`
			PreBalances       []uint64       `json:"preBalances"`
			PostBalances      []uint64       `json:"postBalances"`
			PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
			PostTokenBalances []tokenBalance `json:"postTokenBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	} `json:"result"`
}

// Verify fetches the finalized transaction for the given signature and
// derives the transfer proof from its balance deltas. A missing or failed
// transaction yields an unconfirmed proof, not an error; errors are reserved
// for transport failures after retries are exhausted.
func (v *Verifier) Verify(ctx context.Context, signature string) (domain.TransferProof, error) {
	operation := func() (*getTransactionResponse, error) {
		return v.getTransaction(ctx, signature)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultRetryDelay

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(v.maxTries),
	)
	if err != nil {
		return domain.TransferProof{}, fmt.Errorf("solana: verify %s: %w", signature, err)
	}

	if resp.Error != nil {
		v.logger.Warn("verifier: rpc error",
			slog.String("signature", signature),
			slog.Int("code", resp.Error.Code),
			slog.String("message", resp.Error.Message),
		)
		return domain.TransferProof{}, nil
	}
	if resp.Result == nil || resp.Result.Meta == nil {
		// Unknown signature: the transfer never landed.
		return domain.TransferProof{}, nil
	}
	if resp.Result.Meta.Err != nil {
		// The transaction executed and failed; nothing moved.
		return domain.TransferProof{}, nil
	}

	meta := resp.Result.Meta
	keys := resp.Result.Transaction.Message.AccountKeys

	// A buy deposits lamports into the custodial wallet; a sell deposits
	// clip tokens into an account the custodial wallet owns. Either deposit
	// confirms the transfer.
	if proof := v.proofFromBalances(keys, meta.PreBalances, meta.PostBalances); proof.Confirmed {
		return proof, nil
	}
	return v.proofFromTokenBalances(meta.PreTokenBalances, meta.PostTokenBalances), nil
}

// proofFromBalances finds the custodial wallet's lamport delta and the
// counterparty that funded it. The custodial wallet must have gained value
// for the proof to confirm.
func (v *Verifier) proofFromBalances(keys []string, pre, post []uint64) domain.TransferProof {
	if len(pre) != len(keys) || len(post) != len(keys) {
		return domain.TransferProof{}
	}

	var proof domain.TransferProof
	for i, key := range keys {
		if key != v.custodial {
			continue
		}
		if post[i] <= pre[i] {
			return domain.TransferProof{}
		}
		proof.Confirmed = true
		proof.Amount = post[i] - pre[i]
		proof.ToAccount = key
		break
	}
	if !proof.Confirmed {
		return domain.TransferProof{}
	}

	// The sender is the account that lost the most value (it also pays the
	// network fee, so its delta is at least the transfer amount).
	var bestLoss uint64
	for i, key := range keys {
		if key == v.custodial || post[i] >= pre[i] {
			continue
		}
		if loss := pre[i] - post[i]; loss > bestLoss {
			bestLoss = loss
			proof.FromAccount = key
		}
	}

	return proof
}

// proofFromTokenBalances confirms a token deposit into a custodial-owned
// token account. Amounts are raw base units from uiTokenAmount.amount;
// entries that fail to parse are skipped.
func (v *Verifier) proofFromTokenBalances(pre, post []tokenBalance) domain.TransferProof {
	preAmounts := make(map[int]uint64, len(pre))
	for _, b := range pre {
		if amt, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64); err == nil {
			preAmounts[b.AccountIndex] = amt
		}
	}

	var proof domain.TransferProof
	var mint string
	for _, b := range post {
		if b.Owner != v.custodial {
			continue
		}
		amt, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64)
		if err != nil || amt <= preAmounts[b.AccountIndex] {
			continue
		}
		if gain := amt - preAmounts[b.AccountIndex]; gain > proof.Amount {
			proof.Confirmed = true
			proof.Amount = gain
			proof.ToAccount = v.custodial
			mint = b.Mint
		}
	}
	if !proof.Confirmed {
		return domain.TransferProof{}
	}

	// The sender is the owner that lost the most of the same mint.
	postAmounts := make(map[int]uint64, len(post))
	for _, b := range post {
		if amt, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64); err == nil {
			postAmounts[b.AccountIndex] = amt
		}
	}
	var bestLoss uint64
	for _, b := range pre {
		if b.Owner == v.custodial || b.Mint != mint {
			continue
		}
		amt, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64)
		if err != nil || amt <= postAmounts[b.AccountIndex] {
			continue
		}
		if loss := amt - postAmounts[b.AccountIndex]; loss > bestLoss {
			bestLoss = loss
			proof.FromAccount = b.Owner
		}
	}

	return proof
}

func (v *Verifier) getTransaction(ctx context.Context, signature string) (*getTransactionResponse, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      v.requestID.Add(1),
		Method:  "getTransaction",
		Params: []any{
			signature,
			map[string]any{
				"encoding":                       "json",
				"commitment":                     "finalized",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("solana: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("solana: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solana: rpc call: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("solana: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solana: rpc status %d", httpResp.StatusCode)
	}

	var resp getTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("solana: decode response: %w", err)
	}
	return &resp, nil
}

// Compile-time interface check.
var _ domain.TransferVerifier = (*Verifier)(nil)
