package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentexa/import-cli/internal/resilience"
)

func TestClient_ListAll_Paginates(t *testing.T) {
	total := listPageSize + 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)

		count := listPageSize
		if offset+count > total {
			count = total - offset
		}
		recs := make([]Record, count)
		for i := range recs {
			recs[i] = Record{
				ID:     fmt.Sprintf("rec-%d", offset+i),
				Fields: Fields{"client_number": float64(offset + i + 1)},
			}
		}
		json.NewEncoder(w).Encode(listResponse{Records: recs, Total: total})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	recs, err := c.ListAll(context.Background(), EntityClients)
	require.NoError(t, err)
	assert.Len(t, recs, total)
	assert.Equal(t, "rec-0", recs[0].ID)
	assert.Equal(t, total, recs[total-1].Fields.Int("client_number"))
}

func TestClient_Create(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/clients", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Fields Fields `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Record{ID: "new-id", Fields: body.Fields})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	rec, err := c.Create(context.Background(), EntityClients, Fields{"name": "Dana Levi", "client_number": 12})
	require.NoError(t, err)
	assert.Equal(t, "new-id", rec.ID)
	assert.Equal(t, "Dana Levi", rec.Fields.Str("name"))
}

func TestClient_Update(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/v1/patients/p-7", r.URL.Path)
		json.NewEncoder(w).Encode(Record{ID: "p-7", Fields: Fields{"phone": "0521234567"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	rec, err := c.Update(context.Background(), EntityPatients, "p-7", Fields{"phone": "0521234567"})
	require.NoError(t, err)
	assert.Equal(t, "p-7", rec.ID)
}

func TestClient_Update_RequiresID(t *testing.T) {
	c := NewClient("http://localhost", "")
	_, err := c.Update(context.Background(), EntityClients, "", Fields{})
	require.Error(t, err)
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Create(context.Background(), EntityClients, Fields{"name": "x"})
	require.Error(t, err)
	assert.True(t, resilience.Retryable(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "overloaded", apiErr.Message)
}

func TestClient_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"missing name"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Create(context.Background(), EntityClients, Fields{})
	require.Error(t, err)
	assert.False(t, resilience.Retryable(err))
}

func TestClient_RateLimiterAppliesBetweenRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(listResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRateLimit(1000))
	for i := 0; i < 3; i++ {
		_, err := c.ListAll(context.Background(), EntityClients)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}
