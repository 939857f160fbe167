package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	custodialAccount = "WaveMintCustody1111111111111111111111111111"
	buyerAccount     = "Buyer111111111111111111111111111111111111111"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func rpcResult(keys []string, pre, post []uint64, txErr any) string {
	result := map[string]any{
		"meta": map[string]any{
			"err":          txErr,
			"preBalances":  pre,
			"postBalances": post,
		},
		"transaction": map[string]any{
			"message": map[string]any{
				"accountKeys": keys,
			},
		},
	}
	raw, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	return string(raw)
}

func TestVerify_ConfirmedTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getTransaction", req.Method)
		require.Equal(t, "abc123", req.Params[0])

		fmt.Fprint(w, rpcResult(
			[]string{buyerAccount, custodialAccount},
			[]uint64{5_000_000_000, 1_000_000_000},
			[]uint64{3_999_995_000, 2_000_000_000},
			nil,
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, proof.Confirmed)
	require.Equal(t, uint64(1_000_000_000), proof.Amount)
	require.Equal(t, buyerAccount, proof.FromAccount)
	require.Equal(t, custodialAccount, proof.ToAccount)
}

func tokenBalanceEntry(accountIndex int, mint, owner, amount string) map[string]any {
	return map[string]any{
		"accountIndex":  accountIndex,
		"mint":          mint,
		"owner":         owner,
		"uiTokenAmount": map[string]any{"amount": amount},
	}
}

func rpcTokenResult(keys []string, pre, post []uint64, preTok, postTok []map[string]any) string {
	result := map[string]any{
		"meta": map[string]any{
			"err":               nil,
			"preBalances":       pre,
			"postBalances":      post,
			"preTokenBalances":  preTok,
			"postTokenBalances": postTok,
		},
		"transaction": map[string]any{
			"message": map[string]any{
				"accountKeys": keys,
			},
		},
	}
	raw, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	return string(raw)
}

// A sell deposits clip tokens into the custodial token account; the
// custodial wallet gains no lamports (the seller pays the network fee) yet
// the transfer must still confirm.
func TestVerify_SellTokenDeposit(t *testing.T) {
	const clipMint = "C1ipMint11111111111111111111111111111111111"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rpcTokenResult(
			[]string{buyerAccount, "SellerTokenAcct111", "CustodyTokenAcct11"},
			[]uint64{5_000_000_000, 2_039_280, 2_039_280},
			[]uint64{4_999_995_000, 2_039_280, 2_039_280},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, buyerAccount, "750000000"),
				tokenBalanceEntry(2, clipMint, custodialAccount, "0"),
			},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, buyerAccount, "250000000"),
				tokenBalanceEntry(2, clipMint, custodialAccount, "500000000"),
			},
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "selldep")
	require.NoError(t, err)
	require.True(t, proof.Confirmed)
	require.Equal(t, uint64(500_000_000), proof.Amount)
	require.Equal(t, buyerAccount, proof.FromAccount)
	require.Equal(t, custodialAccount, proof.ToAccount)
}

func TestVerify_SellFreshTokenAccount(t *testing.T) {
	const clipMint = "C1ipMint11111111111111111111111111111111111"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The custodial token account was created inside the transaction,
		// so it has no preTokenBalances entry at all.
		fmt.Fprint(w, rpcTokenResult(
			[]string{buyerAccount, "SellerTokenAcct111", "CustodyTokenAcct11"},
			[]uint64{5_000_000_000, 2_039_280, 0},
			[]uint64{4_997_955_720, 2_039_280, 2_039_280},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, buyerAccount, "300000000"),
			},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, buyerAccount, "0"),
				tokenBalanceEntry(2, clipMint, custodialAccount, "300000000"),
			},
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "fresh")
	require.NoError(t, err)
	require.True(t, proof.Confirmed)
	require.Equal(t, uint64(300_000_000), proof.Amount)
	require.Equal(t, buyerAccount, proof.FromAccount)
}

func TestVerify_TokenWithdrawalNotConfirmed(t *testing.T) {
	const clipMint = "C1ipMint11111111111111111111111111111111111"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rpcTokenResult(
			[]string{buyerAccount, "CustodyTokenAcct11"},
			[]uint64{5_000_000_000, 2_039_280},
			[]uint64{4_999_995_000, 2_039_280},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, custodialAccount, "500000000"),
			},
			[]map[string]any{
				tokenBalanceEntry(1, clipMint, custodialAccount, "100000000"),
			},
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "outbound")
	require.NoError(t, err)
	require.False(t, proof.Confirmed)
}

func TestVerify_UnknownSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":null}`)
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, proof.Confirmed)
	require.Zero(t, proof.Amount)
}

func TestVerify_FailedTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rpcResult(
			[]string{buyerAccount, custodialAccount},
			[]uint64{5_000_000_000, 1_000_000_000},
			[]uint64{4_999_995_000, 1_000_000_000},
			map[string]any{"InstructionError": []any{0, "Custom"}},
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "failed")
	require.NoError(t, err)
	require.False(t, proof.Confirmed)
}

func TestVerify_CustodialNotCredited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rpcResult(
			[]string{buyerAccount, "SomeOtherAccount111111111111111111111111111"},
			[]uint64{5_000_000_000, 1_000_000_000},
			[]uint64{3_999_995_000, 2_000_000_000},
			nil,
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger())
	proof, err := v.Verify(context.Background(), "wrongdest")
	require.NoError(t, err)
	require.False(t, proof.Confirmed)
}

func TestVerify_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, rpcResult(
			[]string{buyerAccount, custodialAccount},
			[]uint64{2_000_000_000, 0},
			[]uint64{1_499_995_000, 500_000_000},
			nil,
		))
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger(), WithMaxTries(3))
	proof, err := v.Verify(context.Background(), "retry")
	require.NoError(t, err)
	require.True(t, proof.Confirmed)
	require.Equal(t, uint64(500_000_000), proof.Amount)
	require.Equal(t, int32(2), calls.Load())
}

func TestVerify_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, custodialAccount, testLogger(), WithMaxTries(2))
	_, err := v.Verify(context.Background(), "down")
	require.Error(t, err)
}
