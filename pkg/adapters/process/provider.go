// Package process hosts tools in a long-lived child process. The child speaks
// a newline-delimited JSON protocol over stdin/stdout: one request object per
// line in, one response object per line out, correlated by numeric id.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const (
	opList = "list"
	opCall = "call"

	// maxLineBytes bounds a single response line. Tool payloads are capped
	// upstream, so anything past this is a misbehaving peer.
	maxLineBytes = 10 * 1024 * 1024

	// closeGrace is how long Close waits for the child to exit after its
	// stdin is closed before killing it.
	closeGrace = 3 * time.Second
)

// ErrProviderClosed is returned for requests made after the transport shut down.
var ErrProviderClosed = errors.New("process provider is closed")

type request struct {
	ID   int64          `json:"id"`
	Op   string         `json:"op"`
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type callResult struct {
	Status   string            `json:"status"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type response struct {
	ID     int64       `json:"id"`
	Tools  []toolSpec  `json:"tools,omitempty"`
	Result *callResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// roundTripResult pairs a peer response with a transport-level error.
type roundTripResult struct {
	resp response
	err  error
}

// Provider runs an external tool host and implements ports.ToolProvider.
// Requests may be issued concurrently; responses are matched by id, so the
// peer is free to answer out of order.
type Provider struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger
	dir    string
	env    []string

	nextID  atomic.Int64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan roundTripResult
	failed  error

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures the Provider.
type Option func(*Provider)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(p *Provider) {
		p.dir = dir
	}
}

// WithEnv appends KEY=VALUE entries to the child's environment.
func WithEnv(env []string) Option {
	return func(p *Provider) {
		p.env = env
	}
}

// New starts the tool host command and returns a connected provider. The
// context governs the child's lifetime: cancelling it kills the process.
func New(ctx context.Context, command string, args []string, opts ...Option) (*Provider, error) {
	p := &Provider{
		logger:  logging.NewNop(),
		pending: make(map[int64]chan roundTripResult),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = p.dir
	cmd.Env = append(os.Environ(), p.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring stdin to tool process: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring stdout from tool process: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring stderr from tool process: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting tool process %q: %w", command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.logger.Info("Tool process started", "command", command, "pid", cmd.Process.Pid)

	go p.drainStderr(stderr)
	go p.readLoop(stdout)

	return p, nil
}

// newWired connects a provider to an already-open transport. Used by tests
// and by hosts that manage the peer process themselves.
func newWired(peerOut io.Reader, peerIn io.WriteCloser, opts ...Option) *Provider {
	p := &Provider{
		stdin:   peerIn,
		logger:  logging.NewNop(),
		pending: make(map[int64]chan roundTripResult),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.readLoop(peerOut)
	return p
}

// Discover implements ports.ToolProvider.
func (p *Provider) Discover(ctx context.Context) ([]ports.Tool, error) {
	resp, err := p.roundTrip(ctx, request{Op: opList})
	if err != nil {
		return nil, fmt.Errorf("listing tools from process: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("tool process rejected listing: %s", resp.Error)
	}

	tools := make([]ports.Tool, 0, len(resp.Tools))
	for _, spec := range resp.Tools {
		if spec.Name == "" {
			p.logger.Warn("Skipping unnamed tool from process listing")
			continue
		}
		tools = append(tools, &remoteTool{provider: p, spec: spec})
	}
	return tools, nil
}

// Close shuts the transport down. The child's stdin is closed first so a
// well-behaved host exits on EOF; a stubborn one is killed after a grace
// period. Safe to call more than once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()

		select {
		case <-p.done:
		case <-time.After(closeGrace):
			if p.cmd != nil && p.cmd.Process != nil {
				p.logger.Warn("Tool process ignored shutdown, killing", "pid", p.cmd.Process.Pid)
				_ = p.cmd.Process.Kill()
				<-p.done
			}
		}
	})
	return nil
}

func (p *Provider) roundTrip(ctx context.Context, req request) (response, error) {
	req.ID = p.nextID.Add(1)
	ch := make(chan roundTripResult, 1)

	p.mu.Lock()
	if p.failed != nil {
		err := p.failed
		p.mu.Unlock()
		return response{}, err
	}
	p.pending[req.ID] = ch
	p.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		p.forget(req.ID)
		return response{}, fmt.Errorf("encoding request: %w", err)
	}

	p.writeMu.Lock()
	_, err = p.stdin.Write(append(payload, '\n'))
	p.writeMu.Unlock()
	if err != nil {
		p.forget(req.ID)
		return response{}, fmt.Errorf("writing to tool process: %w", err)
	}

	select {
	case rt := <-ch:
		return rt.resp, rt.err
	case <-ctx.Done():
		p.forget(req.ID)
		return response{}, ctx.Err()
	}
}

func (p *Provider) forget(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// readLoop consumes response lines until the peer's output closes, then
// fails every in-flight request.
func (p *Provider) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			p.logger.Warn("Discarding unparsable line from tool process", "err", err)
			continue
		}
		p.dispatch(resp)
	}

	err := scanner.Err()
	if p.cmd != nil {
		if waitErr := p.cmd.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
	}
	if err == nil {
		err = ErrProviderClosed
	} else {
		err = fmt.Errorf("tool process terminated: %w", err)
	}

	p.failAll(err)
	close(p.done)
}

func (p *Provider) dispatch(resp response) {
	p.mu.Lock()
	ch, ok := p.pending[resp.ID]
	delete(p.pending, resp.ID)
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("Response for unknown request id", "id", resp.ID)
		return
	}
	ch <- roundTripResult{resp: resp}
}

func (p *Provider) failAll(err error) {
	p.mu.Lock()
	p.failed = err
	for id, ch := range p.pending {
		delete(p.pending, id)
		ch <- roundTripResult{err: err}
	}
	p.mu.Unlock()
}

func (p *Provider) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug("Tool process stderr", "line", scanner.Text())
	}
}

// remoteTool proxies a single tool exposed by the child process.
type remoteTool struct {
	provider *Provider
	spec     toolSpec
}

func (t *remoteTool) Name() string               { return t.spec.Name }
func (t *remoteTool) Description() string        { return t.spec.Description }
func (t *remoteTool) Parameters() map[string]any { return t.spec.Parameters }

// Execute implements ports.Tool. Transport failures surface as Go errors so
// callers can retry; errors reported by the tool itself come back as error
// results.
func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	resp, err := t.provider.roundTrip(ctx, request{Op: opCall, Tool: t.spec.Name, Args: args})
	if err != nil {
		return domain.ToolResult{}, err
	}
	if resp.Error != "" {
		return domain.ErrorResult(resp.Error), nil
	}
	if resp.Result == nil {
		return domain.ErrorResult(fmt.Sprintf("tool %q returned an empty response", t.spec.Name)), nil
	}

	status := domain.StatusSuccess
	if resp.Result.Status == string(domain.StatusError) {
		status = domain.StatusError
	}
	return domain.ToolResult{
		Status:   status,
		Content:  resp.Result.Content,
		Metadata: resp.Result.Metadata,
	}, nil
}
