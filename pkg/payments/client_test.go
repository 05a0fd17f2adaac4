package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req PayoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claim-123", req.ClaimID)
		assert.Equal(t, 240.50, req.Amount)
		assert.Equal(t, "usd", req.Currency)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PayoutResponse{
			SettlementID: "stl_abc123",
			Amount:       req.Amount,
			Status:       "settled",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.Payout(context.Background(), PayoutRequest{
		ClaimID: "claim-123",
		Amount:  240.50,
	})

	require.NoError(t, err)
	assert.Equal(t, "stl_abc123", resp.SettlementID)
	assert.Equal(t, "settled", resp.Status)
}

func TestPayout_ValidatesInput(t *testing.T) {
	client := NewClient("http://unused", "key")

	_, err := client.Payout(context.Background(), PayoutRequest{Amount: 10})
	assert.ErrorContains(t, err, "claim id")

	_, err = client.Payout(context.Background(), PayoutRequest{ClaimID: "c1", Amount: 0})
	assert.ErrorContains(t, err, "not positive")
}

func TestPayout_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	_, err := client.Payout(context.Background(), PayoutRequest{ClaimID: "c1", Amount: 5})

	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected status 422")
}

func TestPayout_MissingSettlementID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount": 5, "status": "settled"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	_, err := client.Payout(context.Background(), PayoutRequest{ClaimID: "c1", Amount: 5})

	require.Error(t, err)
	assert.ErrorContains(t, err, "missing settlement id")
}
