package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	var got executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"summary":"deployed 3 services"}`))
	}))
	defer srv.Close()

	out, err := NewHTTPRunner(srv.URL, "tok", nil, nil).Execute(context.Background(), "deploy", map[string]string{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, "deployed 3 services", out)
	assert.Equal(t, executeRequest{Name: "deploy", Args: map[string]string{"env": "prod"}}, got)
}

func TestExecuteEmptySummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := NewHTTPRunner(srv.URL, "", nil, nil).Execute(context.Background(), "noop", nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", out)
}

func TestExecuteFailures(t *testing.T) {
	_, err := NewHTTPRunner("", "", nil, nil).Execute(context.Background(), "x", nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"no such workflow"}`))
	}))
	defer srv.Close()

	_, err = NewHTTPRunner(srv.URL, "", nil, nil).Execute(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such workflow")
	assert.Equal(t, 1, calls, "no retry")
}
