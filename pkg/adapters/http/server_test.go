package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arborhttp "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/session"
)

type stubRunner struct {
	result *domain.RunResult
	err    error
	gotID  string
	gotIn  string
}

func (s *stubRunner) Run(ctx context.Context, sessionID, input string) (*domain.RunResult, error) {
	s.gotID, s.gotIn = sessionID, input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestHandleRun_Success(t *testing.T) {
	runner := &stubRunner{result: &domain.RunResult{
		SessionID:   "s1",
		FinalOutput: "Paris",
		Outcome:     domain.OutcomeFinal,
		TurnsUsed:   1,
	}}
	srv := httptest.NewServer(arborhttp.NewHandler(runner))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/run", "application/json",
		strings.NewReader(`{"session_id": "s1", "input": "capital of France?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result domain.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Paris", result.FinalOutput)
	assert.Equal(t, domain.OutcomeFinal, result.Outcome)
	assert.Equal(t, "s1", runner.gotID)
	assert.Equal(t, "capital of France?", runner.gotIn)
}

func TestHandleRun_Validation(t *testing.T) {
	srv := httptest.NewServer(arborhttp.NewHandler(&stubRunner{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/run", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/run", "application/json",
		strings.NewReader(`{"session_id": "s1", "input": "  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/run", "application/json",
		strings.NewReader(`{"input": "hello"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandleRun_EngineError(t *testing.T) {
	runner := &stubRunner{err: errors.New("gateway down")}
	srv := httptest.NewServer(arborhttp.NewHandler(runner))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/run", "application/json",
		strings.NewReader(`{"session_id": "s1", "input": "hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleHealthAndInfo(t *testing.T) {
	srv := httptest.NewServer(arborhttp.NewHandler(&stubRunner{}, arborhttp.WithVersion("1.2.3")))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "arbor", info["name"])
	assert.Equal(t, "1.2.3", info["version"])
}

func TestSessionEndpoints(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, "s1", []domain.Message{domain.NewMessage(domain.RoleUser, "hi")}))

	srv := httptest.NewServer(arborhttp.NewHandler(&stubRunner{}, arborhttp.WithSessions(manager)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var listing map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Contains(t, listing["sessions"], "s1")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/s1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	_, err = manager.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
