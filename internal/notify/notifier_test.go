package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expo/internal/types"
)

func TestOrdersReadySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/ready", r.URL.Path)
		var req struct {
			OrderIDs []string `json:"order_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"o1", "o2"}, req.OrderIDs)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	errs := c.OrdersReady(context.Background(), []types.ID{"o1", "o2"})
	assert.Empty(t, errs)
}

func TestOrdersReadyPerOrderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"order_id":"o2","message":"source rejected"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	errs := c.OrdersReady(context.Background(), []types.ID{"o1", "o2"})
	require.Len(t, errs, 1)
	assert.Equal(t, types.ID("o2"), errs[0].OrderID)
	assert.Equal(t, "source rejected", errs[0].Message)
}

func TestOrdersReadyUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	errs := c.OrdersReady(context.Background(), []types.ID{"o1", "o2"})
	require.Len(t, errs, 2, "every order in the batch gets an error")
}

func TestCloseOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/o9/close", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	assert.NoError(t, c.CloseOrder(context.Background(), "o9"))
}
