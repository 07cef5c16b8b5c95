package push

import (
	"context"
	"sync"
)

type MockCall struct {
	Recipient string
	Message   string
}

// MockTransport 可配置的推送通道 mock，实现 Transport 接口
type MockTransport struct {
	mu    sync.Mutex
	calls []MockCall

	err       error
	failFor   map[string]error
	failCount int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{failFor: make(map[string]error)}
}

func (m *MockTransport) Name() string {
	return "mock"
}

func (m *MockTransport) Push(ctx context.Context, recipient, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Recipient: recipient, Message: message})

	if err, ok := m.failFor[recipient]; ok {
		return err
	}
	if m.failCount > 0 {
		m.failCount--
		return m.err
	}
	if m.failCount < 0 {
		return m.err
	}
	return nil
}

// Fail 之后的 n 次调用返回 err；n < 0 表示一直失败，err 为 nil 时恢复
func (m *MockTransport) Fail(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		n = 0
	}
	m.err = err
	m.failCount = n
}

// FailRecipient 发往指定接收方的调用总是返回 err，err 为 nil 时恢复
func (m *MockTransport) FailRecipient(recipient string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFor, recipient)
		return
	}
	m.failFor[recipient] = err
}

func (m *MockTransport) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo 发往某接收方的调用
func (m *MockTransport) CallsTo(recipient string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.calls {
		if c.Recipient == recipient {
			out = append(out, c)
		}
	}
	return out
}
