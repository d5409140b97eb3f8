// Package rpctest provides a scripted in-memory rpc.Gateway for tests.
package rpctest

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/tidwall/gjson"
)

// Reply is the scripted answer to one call.
type Reply struct {
	Events []rpc.Event
	Result string // JSON, may be empty
	Err    error
	// Block makes the call wait until Release is called or ctx is done.
	Block bool
}

// Call is one recorded invocation.
type Call struct {
	Method string
	Params rpc.Params
}

// Gateway records calls and answers them from per-method scripts. Methods
// with no script succeed with an empty result.
type Gateway struct {
	mu      sync.Mutex
	calls   []Call
	replies map[string][]Reply
	funcs   map[string]func(rpc.Params) Reply
	release chan struct{}
	started chan Call
}

// New returns an empty fake.
func New() *Gateway {
	return &Gateway{
		replies: make(map[string][]Reply),
		funcs:   make(map[string]func(rpc.Params) Reply),
		release: make(chan struct{}),
		started: make(chan Call, 64),
	}
}

// Reply queues replies for method, consumed in order. The last one repeats.
func (g *Gateway) Reply(method string, replies ...Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[method] = append(g.replies[method], replies...)
}

// Handle answers method with fn, taking precedence over queued replies.
func (g *Gateway) Handle(method string, fn func(rpc.Params) Reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funcs[method] = fn
}

// Release unblocks every call waiting on a Block reply.
func (g *Gateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.release)
	g.release = make(chan struct{})
}

// Started receives every call as it begins.
func (g *Gateway) Started() <-chan Call {
	return g.started
}

// Calls returns the recorded calls, optionally filtered by method.
func (g *Gateway) Calls(method ...string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(method) == 0 {
		return append([]Call(nil), g.calls...)
	}
	var out []Call
	for _, c := range g.calls {
		for _, m := range method {
			if c.Method == m {
				out = append(out, c)
			}
		}
	}
	return out
}

func (g *Gateway) Call(ctx context.Context, method string, params rpc.Params) (gjson.Result, error) {
	return g.Stream(ctx, method, params, nil)
}

func (g *Gateway) Stream(ctx context.Context, method string, params rpc.Params, handle func(rpc.Event) error) (gjson.Result, error) {
	r, release := g.next(method, params)
	if r.Block {
		select {
		case <-release:
		case <-ctx.Done():
			return gjson.Result{}, ctx.Err()
		}
	}
	if handle != nil {
		for _, evt := range r.Events {
			if err := handle(evt); err != nil {
				return gjson.Result{}, fmt.Errorf("handle %T: %w", evt, err)
			}
		}
	}
	if r.Err != nil {
		return gjson.Result{}, r.Err
	}
	return gjson.Parse(r.Result), nil
}

func (g *Gateway) next(method string, params rpc.Params) (Reply, <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	call := Call{Method: method, Params: params}
	g.calls = append(g.calls, call)
	select {
	case g.started <- call:
	default:
	}
	if fn, ok := g.funcs[method]; ok {
		return fn(params), g.release
	}
	q := g.replies[method]
	if len(q) == 0 {
		return Reply{}, g.release
	}
	r := q[0]
	if len(q) > 1 {
		g.replies[method] = q[1:]
	}
	return r, g.release
}

// Push is a PushSource fed by tests.
type Push struct {
	ch   chan rpc.Notification
	fail chan error

	mu   sync.Mutex
	subs int
}

// NewPush returns a push source with a buffered feed.
func NewPush() *Push {
	return &Push{ch: make(chan rpc.Notification, 64), fail: make(chan error, 8)}
}

// Send feeds one notification with a JSON payload.
func (p *Push) Send(name, payload string) {
	p.ch <- rpc.Notification{Name: name, Payload: gjson.Parse(payload)}
}

// Fail ends the current or next subscription with err.
func (p *Push) Fail(err error) {
	p.fail <- err
}

// Subscriptions returns how many times Subscribe was called.
func (p *Push) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs
}

func (p *Push) Subscribe(ctx context.Context, deliver func(rpc.Notification)) error {
	p.mu.Lock()
	p.subs++
	p.mu.Unlock()
	for {
		select {
		case n := <-p.ch:
			deliver(n)
		case err := <-p.fail:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
