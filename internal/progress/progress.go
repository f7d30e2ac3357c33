// Package progress builds and delivers command_progress events.
package progress

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"canvasbridge/engine/internal/logging"
)

const EventType = "command_progress"

type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Percent milestones shared with UI consumers.
const (
	PercentStarted   = 0
	PercentPlanned   = 5
	PercentCompleted = 100
	processingSpan   = 90
)

// ChunkPercent maps done/total chunks onto the 5..95 processing range.
func ChunkPercent(done, total int) int {
	if total <= 0 {
		return PercentPlanned + processingSpan
	}
	if done > total {
		done = total
	}
	return int(math.Round(PercentPlanned + float64(done)/float64(total)*processingSpan))
}

type Update struct {
	Type           string         `json:"type"`
	CommandID      string         `json:"commandId"`
	CommandType    string         `json:"commandType"`
	Status         Status         `json:"status"`
	Progress       int            `json:"progress"`
	TotalItems     int            `json:"totalItems"`
	ProcessedItems int            `json:"processedItems"`
	Message        string         `json:"message"`
	Timestamp      int64          `json:"timestamp"`
	CurrentChunk   *int           `json:"currentChunk,omitempty"`
	TotalChunks    *int           `json:"totalChunks,omitempty"`
	ChunkSize      *int           `json:"chunkSize,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Sink delivers an event to the UI boundary. Fire and forget.
type Sink func(Update)

// Build constructs an event. Chunk coordinates found in payload are copied to
// the top level and also left in payload for older consumers.
func Build(commandID, commandType string, status Status, percent, total, processed int, message string, payload map[string]any, now time.Time) Update {
	update := Update{
		Type:           EventType,
		CommandID:      commandID,
		CommandType:    commandType,
		Status:         status,
		Progress:       percent,
		TotalItems:     total,
		ProcessedItems: processed,
		Message:        message,
		Timestamp:      now.UnixMilli(),
	}
	if len(payload) == 0 {
		return update
	}
	current, okCurrent := intField(payload, "currentChunk")
	chunks, okTotal := intField(payload, "totalChunks")
	if okCurrent && okTotal {
		update.CurrentChunk = &current
		update.TotalChunks = &chunks
		if size, ok := intField(payload, "chunkSize"); ok {
			update.ChunkSize = &size
		}
	}
	update.Payload = payload
	return update
}

func intField(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

type Reporter struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

func NewReporter(sink Sink, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reporter{sink: sink, now: time.Now, logger: logger}
}

func (r *Reporter) Emit(commandID, commandType string, status Status, percent, total, processed int, message string, payload map[string]any) Update {
	update := Build(commandID, commandType, status, percent, total, processed, message, payload, r.now())
	r.logger.Debug("progress.emit",
		"command_id", commandID,
		"command", commandType,
		"status", string(status),
		"progress", percent,
		"processed", processed,
		"total", total,
	)
	if r.sink != nil {
		r.sink(update)
	}
	return update
}

// Tracker scopes a Reporter to one command. It emits exactly one started
// event first and at most one terminal event, and never lets progress or
// processedItems move backwards.
type Tracker struct {
	mu          sync.Mutex
	reporter    *Reporter
	commandID   string
	commandType string
	started     bool
	done        bool
	percent     int
	processed   int
	total       int
}

func (r *Reporter) Track(commandID, commandType string) *Tracker {
	return &Tracker{reporter: r, commandID: commandID, commandType: commandType}
}

func (t *Tracker) CommandID() string {
	return t.commandID
}

func (t *Tracker) Start(total int, message string, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.total = total
	t.emitLocked(StatusStarted, PercentStarted, 0, message, payload)
}

func (t *Tracker) Progress(percent, processed int, message string, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.ensureStartedLocked()
	t.emitLocked(StatusInProgress, percent, processed, message, payload)
}

// SetTotal updates totalItems once the work list is known.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

func (t *Tracker) Complete(message string, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.ensureStartedLocked()
	t.done = true
	t.emitLocked(StatusCompleted, PercentCompleted, t.total, message, payload)
}

// Fail emits the terminal error event at the current progress.
func (t *Tracker) Fail(message string, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.ensureStartedLocked()
	t.done = true
	t.emitLocked(StatusError, t.percent, t.processed, message, payload)
}

func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tracker) ensureStartedLocked() {
	if t.started {
		return
	}
	t.started = true
	t.emitLocked(StatusStarted, PercentStarted, 0, "Starting "+t.commandType, nil)
}

func (t *Tracker) emitLocked(status Status, percent, processed int, message string, payload map[string]any) {
	if percent < t.percent {
		percent = t.percent
	}
	if percent > PercentCompleted {
		percent = PercentCompleted
	}
	if processed < t.processed {
		processed = t.processed
	}
	t.percent = percent
	t.processed = processed
	t.reporter.Emit(t.commandID, t.commandType, status, percent, t.total, processed, message, payload)
}
