package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentWalletPayments funds a wallet with exactly enough for N
// rentals and fires them concurrently. Every attempt must succeed and the
// wallet must land on exactly zero.
func TestConcurrentWalletPayments(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	const (
		n      = 20
		amount = 5000
	)

	userID := uuid.New()
	token := mintToken(t, userID)
	app.seedWallet(t, userID, n*amount)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, _ := app.doJSON(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
				"amount":         amount,
				"currency":       "NGN",
				"purpose":        "rental",
				"payment_method": "wallet",
				"metadata":       map[string]any{"content_id": uuid.NewString(), "content_type": "movie"},
			}, nil)
			if status == http.StatusCreated {
				succeeded.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), succeeded.Load())

	wallet, err := app.walletRepo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(0), wallet.Balance)
}

// TestConcurrentOverdraftBlocked gives the wallet funds for only some of the
// concurrent attempts. Exactly that many may succeed; the rest fail with the
// insufficient-funds code and the balance never goes negative.
func TestConcurrentOverdraftBlocked(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	const (
		attempts = 20
		affords  = 7
		amount   = 10000
	)

	userID := uuid.New()
	token := mintToken(t, userID)
	app.seedWallet(t, userID, affords*amount)

	var wg sync.WaitGroup
	var succeeded, rejected atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, env := app.doJSON(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
				"amount":         amount,
				"currency":       "NGN",
				"purpose":        "rental",
				"payment_method": "wallet",
				"metadata":       map[string]any{"content_id": uuid.NewString(), "content_type": "movie"},
			}, nil)
			switch {
			case status == http.StatusCreated:
				succeeded.Add(1)
			case status == http.StatusBadRequest && env.ErrorCode == "PAY_001":
				rejected.Add(1)
			default:
				t.Errorf("unexpected response: status=%d code=%s", status, env.ErrorCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(affords), succeeded.Load())
	assert.Equal(t, int32(attempts-affords), rejected.Load())

	wallet, err := app.walletRepo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(0), wallet.Balance)
}

// TestConcurrentWebhookDeliveriesCreditOnce replays the same charge.success
// delivery from many goroutines at once. The terminal-state guard must
// collapse them into a single wallet credit.
func TestConcurrentWebhookDeliveriesCreditOnce(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	token := mintToken(t, userID)

	status, env := app.doJSON(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"amount":         250000,
		"currency":       "NGN",
		"purpose":        "wallet_topup",
		"payment_method": "card",
		"email":          "viewer@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var result paymentResultData
	require.NoError(t, json.Unmarshal(env.Data, &result))
	ref := result.Payment.ProviderRef
	require.NotEmpty(t, ref)
	app.gateway.succeed(ref, "AUTH_conc01")

	const deliveries = 10
	var wg sync.WaitGroup
	codes := make([]int, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = app.deliverWebhook(t, "charge.success", map[string]any{
				"id":        3003,
				"reference": ref,
				"amount":    250000,
			})
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, fmt.Sprintf("delivery %d", i))
	}

	wallet, err := app.walletRepo.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(250000), wallet.Balance)

	status, env = app.doJSON(t, http.MethodGet, "/api/v1/wallet/transactions", token, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"total":1`)
}
