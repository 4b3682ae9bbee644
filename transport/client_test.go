package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientUnwrapsResultEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"result":{"status":"ok"}}`))
		case "/ftso/prices/FLR%2FUSD", "/ftso/prices/FLR/USD":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"result": PricePoint{
					Symbol:           "FLR/USD",
					Price:            0.0251,
					Timestamp:        time.Now().UTC(),
					Confidence:       0.97,
					ProviderCount:    14,
					ConsensusReached: true,
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	point, err := client.LatestPrice(context.Background(), "FLR/USD")
	require.NoError(t, err)
	require.Equal(t, "FLR/USD", point.Symbol)
	require.InDelta(t, 0.0251, point.Price, 1e-9)
	require.True(t, point.ConsensusReached)
}

func TestClientSurfacesRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"consensus round in progress"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = client.Providers(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "consensus round in progress")
}

func TestClientSubmissionReturnsTxHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var sub PriceSubmission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		require.Equal(t, "provider-7", sub.ProviderID)
		w.Write([]byte(`{"result":{"txHash":"0xfeedface"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	txHash, err := client.SubmitPrice(context.Background(), PriceSubmission{
		ProviderID: "provider-7",
		Symbol:     "FLR/USD",
		Price:      0.025,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "0xfeedface", txHash)
}

func TestClientPingMeasuresLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte(`{"result":{"status":"ok"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	latency, err := client.Ping(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, latency, 5*time.Millisecond)
}

func TestClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
}
