package sailor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/captain/pkg/types"
)

func testChore() types.Chore {
	return types.Chore{
		ID:     100000001,
		Owner:  "1000",
		Script: "echo hello",
		Configuration: types.ChoreConfig{
			CPUs: 2,
			GPUs: 1,
			Out:  "/tmp/out.log",
		},
	}
}

func TestAssignPostsChoreDescriptor(t *testing.T) {
	var got types.AssignRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chore", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	err := c.Assign(context.Background(), strings.TrimPrefix(srv.URL, "http://"), testChore())
	require.NoError(t, err)
	assert.Equal(t, int64(100000001), got.ChoreID)
	assert.Equal(t, "1000", got.Owner)
	assert.Equal(t, "echo hello", got.Script)
	assert.Equal(t, 2, got.Configuration.CPUs)
}

func TestAssignSurfacesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown service: gpu-burn", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	err := c.Assign(context.Background(), strings.TrimPrefix(srv.URL, "http://"), testChore())
	require.Error(t, err)

	se, ok := AsStatus(err)
	require.True(t, ok, "expected a status error, got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "unknown service: gpu-burn", se.Body)
}

func TestNetworkErrorsAreNotStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := NewClient(500 * time.Millisecond)
	err := c.Assign(context.Background(), endpoint, testChore())
	require.Error(t, err)
	_, ok := AsStatus(err)
	assert.False(t, ok, "transport failures must stay distinguishable: %v", err)
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := NewClient(50 * time.Millisecond)
	start := time.Now()
	err := c.Cancel(context.Background(), strings.TrimPrefix(srv.URL, "http://"), 1, "canceled by user")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	_, ok := AsStatus(err)
	assert.False(t, ok)
}

func TestCancelBody(t *testing.T) {
	var got types.CancelRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	err := c.Cancel(context.Background(), strings.TrimPrefix(srv.URL, "http://"), 42, "exceeded time limit")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ChoreID)
	assert.Equal(t, "exceeded time limit", got.Reason)
}

func TestEmptyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	err := c.Assign(context.Background(), strings.TrimPrefix(srv.URL, "http://"), testChore())
	se, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Empty(t, se.Body)
}
