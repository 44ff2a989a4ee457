package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidpay/config"
	"vidpay/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:     baseURL,
		SecretKey:   "sk_test_secret",
		CallbackURL: "https://app.example.com/payment/callback",
		Timeout:     5 * time.Second,
	}
}

func TestClient_InitializeTransaction(t *testing.T) {
	var gotAuth string
	var gotBody initRequestBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         gotBody.Reference,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testGatewayConfig(srv.URL), zerolog.Nop())
	resp, err := c.InitializeTransaction(context.Background(), ports.GatewayInitRequest{
		Reference: "wallet_topup_abcd1234",
		Email:     "viewer@example.com",
		Amount:    500000,
		Currency:  "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc123", resp.AuthorizationURL)
	assert.Equal(t, "wallet_topup_abcd1234", resp.Reference)
	assert.Equal(t, "Bearer sk_test_secret", gotAuth)
	assert.Equal(t, int64(500000), gotBody.Amount)
	assert.Equal(t, "https://app.example.com/payment/callback", gotBody.CallbackURL)
}

func TestClient_InitializeTransaction_GatewayRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid amount",
		})
	}))
	defer srv.Close()

	c := NewClient(testGatewayConfig(srv.URL), zerolog.Nop())
	resp, err := c.InitializeTransaction(context.Background(), ports.GatewayInitRequest{
		Reference: "ref", Email: "a@b.co", Amount: 1,
	})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid amount")
}

func TestClient_VerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/transaction/verify/rental_abcd1234", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]any{
				"reference":        "rental_abcd1234",
				"status":           "success",
				"amount":           50000,
				"currency":         "NGN",
				"gateway_response": "Successful",
				"authorization":    map[string]any{"authorization_code": "AUTH_q3zvs0dh"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testGatewayConfig(srv.URL), zerolog.Nop())
	charge, err := c.VerifyTransaction(context.Background(), "rental_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "success", charge.Status)
	assert.Equal(t, int64(50000), charge.Amount)
	assert.Equal(t, "AUTH_q3zvs0dh", charge.AuthorizationCode)
}

func TestClient_VerifyTransaction_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testGatewayConfig(srv.URL), zerolog.Nop())
	charge, err := c.VerifyTransaction(context.Background(), "ref")
	assert.Nil(t, charge)
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(testGatewayConfig(srv.URL), zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.VerifyTransaction(ctx, "ref")
	assert.Error(t, err)
}
