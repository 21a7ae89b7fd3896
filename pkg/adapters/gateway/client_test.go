package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/gateway"
	"github.com/aretw0/arbor/pkg/ports"
)

func TestQuery_Success(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{"output": "FINAL: done"})
	}))
	defer srv.Close()

	c := gateway.New(srv.URL, gateway.WithToken("sekrit"))
	out, err := c.Query(context.Background(), "what is up", ports.QueryOptions{EnableThinking: true})

	require.NoError(t, err)
	assert.Equal(t, "FINAL: done", out)
	assert.Equal(t, "Bearer sekrit", gotAuth)
	assert.Equal(t, "what is up", gotReq["prompt"])
	assert.Equal(t, true, gotReq["enable_thinking"])
}

func TestQuery_ServiceErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model overloaded"})
	}))
	defer srv.Close()

	c := gateway.New(srv.URL)
	_, err := c.Query(context.Background(), "hi", ports.QueryOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestQuery_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := gateway.New(srv.URL)
	_, err := c.Query(context.Background(), "hi", ports.QueryOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "upstream busy")
}
