package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pricepoolhq/poolbot/internal/domain"
)

const (
	wsHandshakeTimeout = 15 * time.Second

	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsEnvelope is the JSON-RPC 2.0 frame read from a wallet service. Responses
// carry an ID; server-pushed notifications carry a Method instead.
type wsEnvelope struct {
	ID     *uint64         `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsResult struct {
	result json.RawMessage
	err    error
}

// WSProvider is a JSON-RPC wallet provider speaking to a remote wallet
// service over a WebSocket. Requests are matched to responses by id;
// server-pushed frames without an id are dispatched as notifications
// (accountsChanged, chainChanged) to subscribed handlers.
type WSProvider struct {
	name   string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex // serializes writes to conn

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan wsResult
	handlers map[string]map[uint64]func(json.RawMessage)
	nextSub  uint64
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to a wallet service and starts the read and ping loops.
// name is the provider's self-identification used for selection.
func DialWS(ctx context.Context, name, url string, logger *slog.Logger) (*WSProvider, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet/ws: connect %s: %w", url, err)
	}

	p := &WSProvider{
		name:     name,
		conn:     conn,
		logger:   logger.With(slog.String("component", "ws_provider"), slog.String("provider", name)),
		pending:  make(map[uint64]chan wsResult),
		handlers: make(map[string]map[uint64]func(json.RawMessage)),
		done:     make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go p.readLoop()
	go p.pingLoop()

	return p, nil
}

// Name implements Provider.
func (p *WSProvider) Name() string { return p.name }

// Request implements Provider. It writes a JSON-RPC request frame and blocks
// until the matching response arrives, ctx is done, or the connection dies.
func (p *WSProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("wallet/ws: %s: %w", method, domain.ErrProviderUnavailable)
	}
	p.nextID++
	id := p.nextID
	ch := make(chan wsResult, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	req := wsRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	p.writeMu.Lock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := p.conn.WriteJSON(req)
	p.writeMu.Unlock()
	if err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, fmt.Errorf("wallet/ws: write %s: %w (%w)", method, err, domain.ErrProviderUnavailable)
	}

	select {
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, ctx.Err()
	case <-p.done:
		return nil, fmt.Errorf("wallet/ws: %s: connection closed: %w", method, domain.ErrProviderUnavailable)
	case res := <-ch:
		return res.result, res.err
	}
}

// Subscribe implements Provider.
func (p *WSProvider) Subscribe(event string, handler func(json.RawMessage)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handlers[event] == nil {
		p.handlers[event] = make(map[uint64]func(json.RawMessage))
	}
	p.nextSub++
	id := p.nextSub
	p.handlers[event][id] = handler

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers[event], id)
	}
}

// Close implements Provider.
func (p *WSProvider) Close() error {
	p.shutdown(nil)
	return p.conn.Close()
}

// shutdown marks the provider closed and fails every pending request.
func (p *WSProvider) shutdown(cause error) {
	p.closeOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.closed = true
		for id, ch := range p.pending {
			err := domain.ErrProviderUnavailable
			if cause != nil {
				err = fmt.Errorf("wallet/ws: %w (%w)", cause, domain.ErrProviderUnavailable)
			}
			ch <- wsResult{err: err}
			delete(p.pending, id)
		}
	})
}

func (p *WSProvider) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.logger.Warn("read loop terminated", slog.String("error", err.Error()))
			p.shutdown(err)
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			p.logger.Warn("malformed frame", slog.String("error", err.Error()))
			continue
		}

		// Notification: no id, dispatched by method name.
		if env.ID == nil {
			if env.Method != "" {
				p.dispatch(env.Method, env.Params)
			}
			continue
		}

		p.mu.Lock()
		ch, ok := p.pending[*env.ID]
		delete(p.pending, *env.ID)
		p.mu.Unlock()
		if !ok {
			p.logger.Debug("response for unknown request id", slog.Uint64("id", *env.ID))
			continue
		}

		if env.Error != nil {
			ch <- wsResult{err: env.Error}
		} else {
			ch <- wsResult{result: env.Result}
		}
	}
}

func (p *WSProvider) dispatch(event string, params json.RawMessage) {
	p.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(p.handlers[event]))
	for _, h := range p.handlers[event] {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(params)
	}
}

func (p *WSProvider) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.writeMu.Lock()
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := p.conn.WriteMessage(websocket.PingMessage, nil)
			p.writeMu.Unlock()
			if err != nil {
				p.logger.Warn("ping failed", slog.String("error", err.Error()))
				p.shutdown(err)
				return
			}
		}
	}
}

// Compile-time interface check.
var _ Provider = (*WSProvider)(nil)
