package chat

import (
	"context"
	"sync"
)

// Script produces the reply for one mock completion call. call counts all
// calls seen by the mock so far, starting at 0.
type Script func(req *Request, call int) (*Completion, error)

// Mock is a scripted Client for tests. It is safe for concurrent use and
// records every request it receives.
type Mock struct {
	mu     sync.Mutex
	script Script
	calls  []Request
}

// NewMock creates a mock client backed by script.
func NewMock(script Script) *Mock {
	return &Mock{script: script}
}

// TextMock replies with the given texts in order, repeating the last one
// once the script runs out.
func TextMock(texts ...string) *Mock {
	return NewMock(func(_ *Request, call int) (*Completion, error) {
		if len(texts) == 0 {
			return &Completion{}, nil
		}
		if call >= len(texts) {
			call = len(texts) - 1
		}
		return &Completion{Content: texts[call]}, nil
	})
}

func (m *Mock) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, *req)
	script := m.script
	m.mu.Unlock()

	return script(req, call)
}

// Calls returns a copy of all requests seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of completion calls seen so far.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
