// Package wallettest provides a scripted wallet provider for tests.
package wallettest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type scriptStep struct {
	result json.RawMessage
	err    error
}

// Provider is a scripted in-memory wallet provider. Responses are queued per
// method with Stub and StubError and consumed in FIFO order; the last queued
// response for a method is sticky. Notifications are delivered synchronously
// through Emit.
type Provider struct {
	ProviderName string

	mu       sync.Mutex
	scripts  map[string][]scriptStep
	calls    map[string]int
	handlers map[string][]func(json.RawMessage)
	closed   bool
}

// New returns an empty scripted provider named "test".
func New() *Provider {
	return &Provider{
		ProviderName: "test",
		scripts:      make(map[string][]scriptStep),
		calls:        make(map[string]int),
		handlers:     make(map[string][]func(json.RawMessage)),
	}
}

// Stub queues a successful response for method. result is JSON-marshalled.
func (p *Provider) Stub(method string, result any) *Provider {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("wallettest: marshalling stub for %s: %v", method, err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[method] = append(p.scripts[method], scriptStep{result: raw})
	return p
}

// StubError queues an error response for method.
func (p *Provider) StubError(method string, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[method] = append(p.scripts[method], scriptStep{err: err})
	return p
}

// Calls reports how many times method has been requested.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// Emit delivers a provider notification to every subscribed handler.
func (p *Provider) Emit(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("wallettest: marshalling %s payload: %v", event, err))
	}
	p.mu.Lock()
	handlers := append([]func(json.RawMessage){}, p.handlers[event]...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

// Name implements wallet.Provider.
func (p *Provider) Name() string { return p.ProviderName }

// Request implements wallet.Provider by replaying the scripted response.
func (p *Provider) Request(_ context.Context, method string, _ ...any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[method]++

	steps := p.scripts[method]
	if len(steps) == 0 {
		return nil, fmt.Errorf("wallettest: unexpected request %q", method)
	}
	step := steps[0]
	if len(steps) > 1 {
		p.scripts[method] = steps[1:]
	}
	return step.result, step.err
}

// Subscribe implements wallet.Provider.
func (p *Provider) Subscribe(event string, handler func(json.RawMessage)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = append(p.handlers[event], handler)
	idx := len(p.handlers[event]) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if idx < len(p.handlers[event]) {
			p.handlers[event][idx] = func(json.RawMessage) {}
		}
	}
}

// Close implements wallet.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
