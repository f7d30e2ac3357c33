package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"canvasbridge/engine/internal/batch"
	"canvasbridge/engine/internal/config"
	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
	"canvasbridge/engine/internal/fontrun"
	"canvasbridge/engine/internal/hostworker"
	"canvasbridge/engine/internal/logging"
	"canvasbridge/engine/internal/progress"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

const hostStartTimeout = 10 * time.Second

// Notifier receives every progress event. It must not block.
type Notifier func(update progress.Update)

type runHandle struct {
	runID  string
	cancel context.CancelFunc
}

type Engine struct {
	cfg      config.Config
	host     doctree.Host
	worker   hostworker.Client
	ownsHost bool
	cache    *fontrun.Cache
	resolver *fontrun.Resolver
	reporter *progress.Reporter
	notifyMu sync.RWMutex
	notify   Notifier
	logger   *slog.Logger
	sleep    batch.SleepFunc
	newID    func() string
	runMu    sync.Mutex
	runs     map[string]runHandle
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithHost serves commands from host directly, bypassing the worker.
func WithHost(host doctree.Host) Option {
	return func(e *Engine) {
		if host != nil {
			e.host = host
		}
	}
}

// WithHostClient talks to the document host through client.
func WithHostClient(client hostworker.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.worker = client
		}
	}
}

// WithSleep replaces the pause between chunks; tests pass batch.NoSleep.
func WithSleep(sleep batch.SleepFunc) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func New(opts ...Option) (*Engine, error) {
	engine := &Engine{
		cfg:    config.Default(),
		logger: logging.Nop(),
		sleep:  batch.Sleep,
		newID:  uuid.NewString,
		runs:   make(map[string]runHandle),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.host == nil {
		if err := engine.connectHost(); err != nil {
			return nil, err
		}
	}
	cache, err := fontrun.NewCache(engine.cfg.FontCacheSize)
	if err != nil {
		return nil, err
	}
	engine.cache = cache
	engine.resolver = fontrun.NewResolver(engine.host, cache, engine.cfg.FallbackFont(), engine.logger.With("component", "fontrun"))
	engine.reporter = progress.NewReporter(engine.emit, engine.logger)
	engine.logger.Debug("engine.init",
		"fake_host", engine.cfg.FakeHost,
		"host_worker_path", engine.cfg.HostWorkerPath,
		"fallback_font", engine.cfg.FallbackFont().Key(),
	)
	return engine, nil
}

// connectHost starts the configured worker, or the in-memory fake, and
// verifies it answers before any command is accepted.
func (e *Engine) connectHost() error {
	if e.worker == nil {
		if e.cfg.FakeHost {
			e.worker = hostworker.NewFake(nil)
		} else {
			worker := hostworker.New(e.cfg.HostWorkerPath, e.logger)
			if err := worker.Start(); err != nil {
				return fmt.Errorf("host worker failed to start: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), hostStartTimeout)
			defer cancel()
			if err := worker.HealthCheck(ctx); err != nil {
				_ = worker.Close()
				return err
			}
			e.worker = worker
		}
		e.ownsHost = true
	}
	e.host = hostworker.NewHost(e.worker)
	return nil
}

func (e *Engine) Close() error {
	if e.ownsHost && e.worker != nil {
		return e.worker.Close()
	}
	return nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notifyMu.Lock()
	e.notify = notify
	e.notifyMu.Unlock()
}

func (e *Engine) emit(update progress.Update) {
	e.notifyMu.RLock()
	notify := e.notify
	e.notifyMu.RUnlock()
	if notify != nil {
		notify(update)
	}
}

// Execute parses and dispatches one inbound command. messageID is the
// envelope id; it becomes the correlation id when params carry no commandId.
func (e *Engine) Execute(ctx context.Context, name, messageID string, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	cmd, errInfo := ParseCommand(name, params)
	if errInfo != nil {
		e.logger.Warn("engine.rejected", "command", name, "message_id", messageID, "error", errInfo.Message())
		return nil, errInfo
	}
	e.logger.Debug("engine.dispatch", "command", name, "message_id", messageID, "params", logging.RedactJSON(params))
	started := time.Now()
	result, errInfo := e.Dispatch(ctx, cmd, messageID)
	if errInfo != nil {
		e.logger.Warn("engine.command_failed", "command", name, "message_id", messageID, "error_code", errInfo.ErrorCode, "error", errInfo.Message())
		return nil, errInfo
	}
	e.logger.Info("engine.command_done", "command", name, "message_id", messageID, "elapsed_ms", time.Since(started).Milliseconds())
	return result, nil
}

// Dispatch routes a parsed command to its handler.
func (e *Engine) Dispatch(ctx context.Context, cmd Command, messageID string) (any, *errinfo.ErrorInfo) {
	commandID := ""
	if c, ok := cmd.(correlated); ok {
		commandID = e.commandID(c.correlationID(), messageID)
	}
	switch c := cmd.(type) {
	case *GetEngineInfo:
		return e.engineInfo()
	case *GetHostStatus:
		return e.hostStatus(ctx, c)
	case *GetNodeInfo:
		return e.nodeInfo(ctx, c)
	case *GetNodesInfo:
		return e.nodesInfo(ctx, c)
	case *ScanTextNodes:
		return e.scanTextNodes(ctx, c, commandID)
	case *ScanNodesByTypes:
		return e.scanNodesByTypes(ctx, c, commandID)
	case *SetTextContent:
		return e.setTextContent(ctx, c)
	case *SetMultipleTextContents:
		return e.setMultipleTextContents(ctx, c, commandID)
	case *DeleteNode:
		return e.deleteNode(ctx, c)
	case *DeleteMultipleNodes:
		return e.deleteMultipleNodes(ctx, c, commandID)
	case *CancelCommand:
		return e.cancelCommand(c)
	default:
		return nil, errinfo.UnknownCommand(cmd.Name())
	}
}

func (e *Engine) commandID(explicit, messageID string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if id := strings.TrimSpace(messageID); id != "" {
		return id
	}
	return e.newID()
}

func (e *Engine) engineInfo() (any, *errinfo.ErrorInfo) {
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
		"commands":       CommandNames(),
	}, nil
}

func (e *Engine) hostStatus(ctx context.Context, c *GetHostStatus) (any, *errinfo.ErrorInfo) {
	if e.worker == nil {
		return map[string]any{"available": true, "host": "in-process"}, nil
	}
	status := map[string]any{"available": true}
	if c.Reset {
		if r, ok := e.worker.(interface{ Reset() }); ok {
			r.Reset()
			e.cache.Purge()
			status["reset"] = true
		}
	}
	if s, ok := e.worker.(interface{ Status() map[string]any }); ok {
		status["worker"] = s.Status()
	}
	if err := e.worker.HealthCheck(ctx); err != nil {
		e.logger.Warn("hostworker.health_check_failed", "error", err.Error())
		status["available"] = false
		status["error"] = err.Error()
		return status, nil
	}
	if info, err := hostworker.NewHost(e.worker).Info(ctx); err == nil {
		status["host"] = info.Host
		if info.Document != "" {
			status["document"] = info.Document
		}
	}
	return status, nil
}

// beginRun registers a cancellable run under commandID.
func (e *Engine) beginRun(parent context.Context, command, commandID string) (context.Context, func(), *errinfo.ErrorInfo) {
	runCtx, cancel := context.WithCancel(parent)
	runID := e.newID()

	e.runMu.Lock()
	defer e.runMu.Unlock()
	if _, exists := e.runs[commandID]; exists {
		cancel()
		return nil, nil, errinfo.ValidationFailed(command, fmt.Sprintf("command %s already in progress", commandID))
	}
	e.runs[commandID] = runHandle{runID: runID, cancel: cancel}
	return runCtx, func() { e.endRun(commandID, runID) }, nil
}

func (e *Engine) endRun(commandID, runID string) {
	var cancel context.CancelFunc

	e.runMu.Lock()
	handle, ok := e.runs[commandID]
	if ok && handle.runID == runID {
		cancel = handle.cancel
		delete(e.runs, commandID)
	}
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) cancelRun(commandID string) bool {
	e.runMu.Lock()
	handle, ok := e.runs[commandID]
	e.runMu.Unlock()
	if !ok || handle.cancel == nil {
		return false
	}
	handle.cancel()
	return true
}

func (e *Engine) cancelCommand(c *CancelCommand) (any, *errinfo.ErrorInfo) {
	requested := e.cancelRun(c.CommandID)
	e.logger.Info("engine.cancel_requested", "command_id", c.CommandID, "found", requested)
	return map[string]any{
		"commandId":       c.CommandID,
		"cancelRequested": requested,
	}, nil
}

// hostError maps a host failure onto the error taxonomy.
func (e *Engine) hostError(command, nodeID string, err error) *errinfo.ErrorInfo {
	var errInfo *errinfo.ErrorInfo
	switch {
	case errors.Is(err, doctree.ErrNotFound):
		return errinfo.NotFound(command, nodeID)
	case errors.Is(err, doctree.ErrNotText):
		return errinfo.UnsupportedOperation(command, nodeID, fmt.Sprintf("Node is not a text node: %s", nodeID))
	case errors.Is(err, hostworker.ErrUnavailable):
		e.cache.Purge()
		errInfo = errinfo.HostUnavailable(command, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errInfo = errinfo.Canceled(command, err.Error())
	default:
		errInfo = errinfo.HostFailed(command, err.Error())
	}
	errInfo.NodeID = nodeID
	return errInfo
}

func (e *Engine) chunking(c config.Chunking, override int) batch.Options {
	size := c.ChunkSize
	if override > 0 {
		size = override
	}
	return batch.Options{
		ChunkSize: size,
		Delay:     c.Delay,
		Sleep:     e.sleep,
		Logger:    e.logger,
	}
}
