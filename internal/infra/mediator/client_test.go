package mediator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		URL:       srv.URL,
		ServiceID: "osmdbt-courier",
		Timeout:   5 * time.Second,
		Retries:   2,
	}, logger.Noop())

	return client, srv
}

func TestReserveAccess(t *testing.T) {
	var gotPath, gotMethod string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, client.ReserveAccess(context.Background()))
	assert.Equal(t, "/service/osmdbt-courier/lock", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestCreateAction(t *testing.T) {
	actionID := uuid.New()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "osmdbt-courier", body["serviceId"])
		assert.Equal(t, float64(667), body["state"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"actionId": actionID})
	}))

	got, err := client.CreateAction(context.Background(), 667)
	require.NoError(t, err)
	assert.Equal(t, actionID, got)
}

func TestUpdateAction(t *testing.T) {
	actionID := uuid.New()
	var gotPath string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateAction(context.Background(), actionID, StatusFailed, map[string]any{"error": "catchup failed"})
	require.NoError(t, err)

	assert.Equal(t, "/action/"+actionID.String(), gotPath)
	assert.Equal(t, string(StatusFailed), gotBody["status"])
	assert.Equal(t, map[string]any{"error": "catchup failed"}, gotBody["metadata"])
}

func TestRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.RemoveLock(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))

	err := client.ReserveAccess(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestNoopMediator(t *testing.T) {
	med := NewNoop()
	ctx := context.Background()

	require.NoError(t, med.ReserveAccess(ctx))

	actionID, err := med.CreateAction(ctx, 667)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, actionID)

	require.NoError(t, med.UpdateAction(ctx, actionID, StatusCompleted, nil))
	require.NoError(t, med.RemoveLock(ctx))
}
