// Package bridge connects the engine to a websocket relay. The relay fans
// messages out per channel; the engine joins one channel and answers the
// execute-command messages it receives there.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"canvasbridge/engine/internal/logging"
	"canvasbridge/engine/internal/progress"
	"canvasbridge/engine/internal/rpc"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingEvery      = (pongWait * 9) / 10
	outboundBuffer = 64
	retryDelay     = 2 * time.Second
)

// envelope is the relay framing around protocol messages.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	ID      string          `json:"id,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Message any    `json:"message,omitempty"`
}

type Client struct {
	url      string
	channel  string
	handler  rpc.Handler
	logger   *slog.Logger
	dialer   *websocket.Dialer
	out      *outbox
	retry    time.Duration
	inflight sync.WaitGroup
}

func New(url, channel string, handler rpc.Handler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		url:     url,
		channel: channel,
		handler: handler,
		logger:  logger.With("component", "bridge"),
		dialer:  websocket.DefaultDialer,
		out:     newOutbox(outboundBuffer),
		retry:   retryDelay,
	}
}

// Notify queues an asynchronous event. When the queue is full the oldest
// intermediate progress event is dropped so a slow relay never stalls a
// batch; terminal events are always kept.
func (c *Client) Notify(event any) {
	if c.out.push(c.wrap(event), droppable(event)) {
		c.logger.Warn("bridge.outbound_dropped")
	}
}

func droppable(event any) bool {
	switch e := event.(type) {
	case progress.Update:
		return !e.Status.Terminal()
	case *progress.Update:
		return e != nil && !e.Status.Terminal()
	default:
		return false
	}
}

func (c *Client) wrap(message any) outbound {
	return outbound{Type: "message", Channel: c.channel, Message: message}
}

// Serve keeps a connection to the relay open until ctx ends, reconnecting
// after a pause whenever the connection drops.
func (c *Client) Serve(ctx context.Context) error {
	defer c.inflight.Wait()
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("bridge.disconnected", "url", c.url, "error", errString(err))
		timer := time.NewTimer(c.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(envelope{Type: "join", Channel: c.channel}); err != nil {
		return fmt.Errorf("join %s: %w", c.channel, err)
	}
	c.logger.Info("bridge.joined", "url", c.url, "channel", c.channel)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		c.writeLoop(connCtx, conn)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	for {
		if !c.flush(conn) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.out.ready:
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes every queued message. A message is removed only after it was
// written, so a broken connection leaves it for the next one.
func (c *Client) flush(conn *websocket.Conn) bool {
	for {
		msg, seq, ok := c.out.front()
		if !ok {
			return true
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return false
		}
		if err := conn.WriteJSON(msg); err != nil {
			c.logger.Warn("bridge.write_failed", "error", err.Error())
			return false
		}
		c.out.pop(seq)
	}
}

// handleFrame accepts relay envelopes and bare protocol messages. Commands
// run on runCtx, which outlives the connection, so a reconnect does not
// abort a batch. Replies queue until a connection is available and are
// never evicted.
func (c *Client) handleFrame(runCtx context.Context, data []byte) {
	payload, ok := c.unwrap(data)
	if !ok {
		return
	}
	req, err := rpc.Decode(payload)
	if err != nil {
		c.logger.Debug("bridge.ignored", "error", err.Error())
		return
	}
	c.logger.Debug("bridge.request", "command", req.Command, "id", req.MessageID(), "params", logging.RedactJSON(req.Params))
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		result, rpcErr := c.handler(runCtx, req)
		c.out.push(c.wrap(rpc.Reply(req, result, rpcErr)), false)
	}()
}

func (c *Client) unwrap(data []byte) ([]byte, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("bridge.invalid_json", "error", err.Error())
		return nil, false
	}
	switch env.Type {
	case "message", "broadcast":
		if env.Channel != "" && !strings.EqualFold(env.Channel, c.channel) {
			return nil, false
		}
		if len(env.Message) == 0 {
			return nil, false
		}
		return env.Message, true
	case rpc.TypeExecuteCommand:
		return data, true
	default:
		c.logger.Debug("bridge.system_message", "type", env.Type)
		return nil, false
	}
}

func errString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}
