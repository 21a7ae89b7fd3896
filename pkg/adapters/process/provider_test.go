package process

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

// fakePeer emulates a tool host on the far side of the pipes. Each incoming
// request line is passed to handle; the returned response is written back as
// a single JSON line.
type fakePeer struct {
	in     *io.PipeReader
	out    *io.PipeWriter
	handle func(req request) response
}

func startPeer(t *testing.T, handle func(req request) response) *Provider {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	peer := &fakePeer{in: reqR, out: respW, handle: handle}
	go peer.serve()

	p := newWired(respR, reqW)
	t.Cleanup(func() {
		_ = respW.Close()
		_ = p.Close()
	})
	return p
}

func (f *fakePeer) serve() {
	scanner := bufio.NewScanner(f.in)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		go func(req request) {
			resp := f.handle(req)
			payload, _ := json.Marshal(resp)
			_, _ = f.out.Write(append(payload, '\n'))
		}(req)
	}
}

func listThenEcho(req request) response {
	switch req.Op {
	case opList:
		return response{ID: req.ID, Tools: []toolSpec{{
			Name:        "echo",
			Description: "Echo the given text back.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
		}}}
	case opCall:
		text, _ := req.Args["text"].(string)
		return response{ID: req.ID, Result: &callResult{Status: "success", Content: text}}
	}
	return response{ID: req.ID, Error: "unknown op"}
}

func TestDiscover_ListsRemoteTools(t *testing.T) {
	p := startPeer(t, listThenEcho)

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name())
	assert.Equal(t, "Echo the given text back.", tools[0].Description())
	assert.Equal(t, "object", tools[0].Parameters()["type"])
}

func TestExecute_RoundTrip(t *testing.T) {
	p := startPeer(t, listThenEcho)

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)

	result, err := tools[0].Execute(context.Background(), map[string]any{"text": "hello over pipes"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, "hello over pipes", result.Content)
}

func TestExecute_ToolErrorBecomesErrorResult(t *testing.T) {
	p := startPeer(t, func(req request) response {
		if req.Op == opList {
			return listThenEcho(req)
		}
		return response{ID: req.ID, Result: &callResult{Status: "error", Content: "echo chamber is full"}}
	})

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)

	result, err := tools[0].Execute(context.Background(), nil)
	require.NoError(t, err, "tool-level failures are results, not transport errors")
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Equal(t, "echo chamber is full", result.Content)
}

func TestExecute_PeerErrorFieldBecomesErrorResult(t *testing.T) {
	p := startPeer(t, func(req request) response {
		if req.Op == opList {
			return listThenEcho(req)
		}
		return response{ID: req.ID, Error: "host crashed handling call"}
	})

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)

	result, err := tools[0].Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, result.Status)
	assert.Contains(t, result.Content, "host crashed")
}

func TestExecute_OutOfOrderResponses(t *testing.T) {
	p := startPeer(t, func(req request) response {
		if req.Op == opList {
			return listThenEcho(req)
		}
		// Delay the first call so the second answers first.
		if tag, _ := req.Args["tag"].(string); tag == "slow" {
			time.Sleep(50 * time.Millisecond)
		}
		tag, _ := req.Args["tag"].(string)
		return response{ID: req.ID, Result: &callResult{Status: "success", Content: tag}}
	})

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)
	tool := tools[0]

	var wg sync.WaitGroup
	results := make([]domain.ToolResult, 2)
	for i, tag := range []string{"slow", "fast"} {
		wg.Add(1)
		go func(i int, tag string) {
			defer wg.Done()
			results[i], _ = tool.Execute(context.Background(), map[string]any{"tag": tag})
		}(i, tag)
	}
	wg.Wait()

	assert.Equal(t, "slow", results[0].Content, "responses must match by id, not arrival order")
	assert.Equal(t, "fast", results[1].Content)
}

func TestExecute_SplitWriteFraming(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		scanner := bufio.NewScanner(reqR)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			payload, _ := json.Marshal(response{ID: req.ID, Result: &callResult{Status: "success", Content: "chunked"}})
			payload = append(payload, '\n')
			// Deliver the line in two writes; framing is by newline, not write.
			half := len(payload) / 2
			_, _ = respW.Write(payload[:half])
			time.Sleep(10 * time.Millisecond)
			_, _ = respW.Write(payload[half:])
		}
	}()

	p := newWired(respR, reqW)
	t.Cleanup(func() {
		_ = respW.Close()
		_ = p.Close()
	})

	tool := &remoteTool{provider: p, spec: toolSpec{Name: "chunky"}}
	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "chunked", result.Content)
}

func TestExecute_PeerExitFailsInFlightCalls(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		scanner := bufio.NewScanner(reqR)
		scanner.Scan()
		// Die without answering.
		_ = respW.Close()
	}()

	p := newWired(respR, reqW)
	t.Cleanup(func() { _ = p.Close() })

	tool := &remoteTool{provider: p, spec: toolSpec{Name: "doomed"}}
	_, err := tool.Execute(context.Background(), nil)
	require.Error(t, err)

	// Later requests fail fast instead of hanging.
	_, err = p.Discover(context.Background())
	require.Error(t, err)
}

func TestExecute_ContextCancellation(t *testing.T) {
	p := startPeer(t, func(req request) response {
		if req.Op == opList {
			return listThenEcho(req)
		}
		time.Sleep(time.Second)
		return response{ID: req.ID, Result: &callResult{Status: "success"}}
	})

	tools, err := p.Discover(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = tools[0].Execute(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
