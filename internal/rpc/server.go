// Package rpc serves the command protocol as newline-delimited JSON over a
// reader/writer pair, normally the process stdin and stdout.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"canvasbridge/engine/internal/logging"
)

const maxMessageSize = 10 * 1024 * 1024

const (
	TypeExecuteCommand = "execute-command"
	TypeCommandResult  = "command-result"
	TypeCommandError   = "command-error"
)

// Request is an inbound execute-command message.
type Request struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MessageID renders the envelope id as a plain string. String ids are
// unquoted; numeric ids keep their literal form.
func (r Request) MessageID() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	raw := strings.TrimSpace(string(r.ID))
	if raw == "null" {
		return ""
	}
	return raw
}

type Response struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   any             `json:"data,omitempty"`
}

type Handler func(ctx context.Context, req Request) (any, *Error)

type Error struct {
	Message string
	Data    any
}

// Reply builds the outbound message for one handled request.
func Reply(req Request, result any, err *Error) Response {
	if err != nil {
		return Response{Type: TypeCommandError, ID: req.ID, Error: err.Message, Data: err.Data}
	}
	return Response{Type: TypeCommandResult, ID: req.ID, Result: result}
}

// Decode parses one inbound line. A message without a command is rejected.
func Decode(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, err
	}
	if req.Type != "" && req.Type != TypeExecuteCommand {
		return req, errors.New("unsupported message type: " + req.Type)
	}
	if strings.TrimSpace(req.Command) == "" {
		return req, errors.New("missing command")
	}
	return req, nil
}

type Server struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	mu      sync.Mutex
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewServer(r io.Reader, w io.Writer, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		reader:  bufio.NewReader(r),
		writer:  bufio.NewWriter(w),
		handler: handler,
		logger:  logger,
	}
}

// Serve reads commands until EOF. Each command runs on its own goroutine so
// a long batch never blocks the read loop. In-flight commands are awaited
// before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	defer s.wg.Wait()
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			s.handleLine(ctx, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("rpc.read_failed", "error", err.Error())
			return err
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return
	}
	if len(line) > maxMessageSize {
		s.logger.Warn("rpc.message_too_large", "bytes", len(line))
		s.send(Response{Type: TypeCommandError, Error: "message too large"})
		return
	}
	req, err := Decode(line)
	if err != nil {
		s.logger.Warn("rpc.invalid_message", "error", err.Error())
		s.send(Response{Type: TypeCommandError, ID: req.ID, Error: err.Error()})
		return
	}
	s.logger.Debug("rpc.request", "command", req.Command, "id", req.MessageID(), "params", logging.RedactJSON(req.Params))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleRequest(ctx, req)
	}()
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	result, err := s.handler(ctx, req)
	if err != nil {
		s.logger.Error("rpc.response_error", "command", req.Command, "id", req.MessageID(), "error", err.Message)
	} else {
		s.logger.Debug("rpc.response", "command", req.Command, "id", req.MessageID(), "result", logging.RedactAny(result))
	}
	s.send(Reply(req, result, err))
}

// Notify writes an asynchronous event, such as a command_progress update.
func (s *Server) Notify(event any) {
	s.send(event)
}

func (s *Server) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("rpc.marshal_failed", "error", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
	_ = s.writer.Flush()
}
