// Package hostworker talks to the design host process over line-delimited
// JSON-RPC on its stdin/stdout.
package hostworker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"canvasbridge/engine/internal/logging"
)

const (
	jsonRPCVersion    = "2.0"
	maxMessageSize    = 12 * 1024 * 1024
	maxRestartAttempt = 3
)

type Client interface {
	Call(ctx context.Context, method string, params any, result any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Info is the HostGetInfo payload.
type Info struct {
	OK       bool   `json:"ok"`
	Host     string `json:"host"`
	Document string `json:"document,omitempty"`
}

type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	pending  map[int]chan response
	nextID   int
	failures int
	disabled bool
	starting bool
	closed   bool
	path     string
	logger   *slog.Logger
	sleep    func(time.Duration)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type response struct {
	result json.RawMessage
	err    *rpcError
}

// New returns a manager for the worker script or binary at path. The process
// is started lazily on the first call.
func New(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	mgr := &Manager{
		pending: make(map[int]chan response),
		nextID:  1,
		path:    strings.TrimSpace(path),
		logger:  logger.With("component", "hostworker"),
		sleep:   time.Sleep,
	}
	mgr.cond = sync.NewCond(&mgr.mu)
	return mgr
}

func (m *Manager) Start() error {
	return m.ensureRunning()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cmd := m.cmd
	m.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	var info Info
	if err := m.Call(ctx, "HostGetInfo", map[string]any{}, &info); err != nil {
		return fmt.Errorf("host worker health check failed: %w", err)
	}
	if !info.OK {
		return errors.New("host worker health check returned not ok")
	}
	m.logger.Debug("hostworker.health_check_ok", "host", info.Host)
	return nil
}

// Reset clears the disabled state so the next call may start the worker again.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = false
	m.failures = 0
	m.logger.Info("hostworker.reset")
}

func (m *Manager) Status() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"path":     m.path,
		"running":  m.cmd != nil,
		"disabled": m.disabled,
		"closed":   m.closed,
		"failures": m.failures,
	}
}

func (m *Manager) Call(ctx context.Context, method string, params any, result any) error {
	if err := m.ensureRunning(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrUnavailable
	}
	id := m.nextID
	m.nextID++
	respCh := make(chan response, 1)
	m.pending[id] = respCh
	stdin := m.stdin
	cmd := m.cmd
	m.mu.Unlock()

	if stdin == nil {
		m.removePending(id)
		return ErrUnavailable
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		m.removePending(id)
		return err
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		m.removePending(id)
		m.handleProcessExit(cmd, err)
		return ErrUnavailable
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return mapRPCError(resp.err)
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		m.removePending(id)
		return ctx.Err()
	}
}

func (m *Manager) ensureRunning() error {
	m.mu.Lock()
	for m.starting {
		m.cond.Wait()
	}
	if m.closed || m.disabled {
		m.mu.Unlock()
		return ErrUnavailable
	}
	if m.cmd != nil {
		m.mu.Unlock()
		return nil
	}
	m.starting = true
	failures := m.failures
	m.mu.Unlock()

	if failures > 0 {
		m.sleep(time.Duration(1<<uint(failures-1)) * time.Second)
	}

	err := m.startProcess()

	m.mu.Lock()
	m.starting = false
	m.cond.Broadcast()
	if err != nil {
		m.failures++
		if m.failures >= maxRestartAttempt {
			m.disabled = true
		}
	} else {
		m.failures = 0
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("hostworker.start_failed", "path", m.path, "error", err.Error())
		return ErrUnavailable
	}
	return nil
}

func (m *Manager) startProcess() error {
	cmdPath, args, err := commandForPath(m.path)
	if err != nil {
		return err
	}
	cmd := exec.Command(cmdPath, args...)
	cmd.Env = append(append([]string{}, os.Environ()...), "PYTHONUNBUFFERED=1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.stdin = stdin
	m.mu.Unlock()

	m.logger.Debug("hostworker.started", "cmd", cmdPath, "path", m.path)

	go m.readLoop(cmd, bufio.NewReader(stdout))
	go m.stderrLoop(stderr)
	go m.waitLoop(cmd)
	return nil
}

func (m *Manager) readLoop(cmd *exec.Cmd, reader *bufio.Reader) {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			m.handleProcessExit(cmd, err)
			return
		}
		if len(line) > maxMessageSize {
			m.handleProcessExit(cmd, errors.New("message too large"))
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			m.logger.Warn("hostworker.invalid_json", "error", err.Error())
			continue
		}
		if resp.ID == 0 {
			continue
		}
		m.mu.Lock()
		ch := m.pending[resp.ID]
		delete(m.pending, resp.ID)
		m.mu.Unlock()
		if ch != nil {
			ch <- response{result: resp.Result, err: resp.Error}
			close(ch)
		}
	}
}

// stderrLoop forwards worker log lines. Lines shaped like
// {"level": ..., "message": ...} keep their level; anything else is a warning.
func (m *Manager) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || m.logWorkerLine(line) {
			continue
		}
		m.logger.Warn("hostworker.stderr", "message", line)
	}
}

func (m *Manager) logWorkerLine(line string) bool {
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return false
	}
	levelRaw, _ := payload["level"].(string)
	message, _ := payload["message"].(string)
	if levelRaw == "" || message == "" {
		return false
	}
	attrs := make([]any, 0, len(payload)*2)
	for key, value := range payload {
		if key == "level" || key == "message" {
			continue
		}
		attrs = append(attrs, key, value)
	}
	switch strings.ToLower(strings.TrimSpace(levelRaw)) {
	case "debug":
		m.logger.Debug(message, attrs...)
	case "info":
		m.logger.Info(message, attrs...)
	case "error":
		m.logger.Error(message, attrs...)
	default:
		m.logger.Warn(message, attrs...)
	}
	return true
}

func (m *Manager) waitLoop(cmd *exec.Cmd) {
	_ = cmd.Wait()
	m.handleProcessExit(cmd, errors.New("process exited"))
}

// handleProcessExit fails every in-flight call and counts a failure so the
// next call restarts the worker after a backoff.
func (m *Manager) handleProcessExit(cmd *exec.Cmd, err error) {
	m.mu.Lock()
	if cmd == nil || m.cmd != cmd {
		m.mu.Unlock()
		return
	}
	m.cmd = nil
	m.stdin = nil
	pending := m.pending
	m.pending = make(map[int]chan response)
	if !m.closed {
		m.failures++
		if m.failures >= maxRestartAttempt {
			m.disabled = true
		}
	}
	m.mu.Unlock()

	for _, ch := range pending {
		ch <- response{err: &rpcError{Message: CodeHostUnavailable}}
		close(ch)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		m.logger.Warn("hostworker.exited", "error", err.Error())
	}
}

func (m *Manager) removePending(id int) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func commandForPath(path string) (string, []string, error) {
	if path == "" {
		return "", nil, errors.New("host worker path not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil, err
	}
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".py"):
		python, err := lookFirst("python3", "python")
		if err != nil {
			return "", nil, err
		}
		return python, []string{"-u", path}, nil
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".mjs"):
		node, err := lookFirst("node")
		if err != nil {
			return "", nil, err
		}
		return node, []string{path}, nil
	default:
		return path, nil, nil
	}
}

func lookFirst(names ...string) (string, error) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s not found in PATH", names[0])
}

func mapRPCError(err *rpcError) error {
	if err == nil {
		return nil
	}
	code := ""
	if err.Data != nil {
		if value, ok := err.Data["error_code"].(string); ok {
			code = value
		}
	}
	if code == "" && strings.EqualFold(err.Message, CodeHostUnavailable) {
		code = CodeHostUnavailable
	}
	if code == CodeHostUnavailable {
		return ErrUnavailable
	}
	return &RemoteError{Code: code, Message: err.Message}
}
