package provider

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/dreamer/internal/memory/mock"
)

// StubProvider replays scripted responses and embeds with the deterministic
// mock embedder. It backs the offline provider and tests.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	Fallback  string
	Err       error
	Calls     [][]Message

	embedder *mock.Embedder
}

func NewStubProvider(responses ...string) *StubProvider {
	p := &StubProvider{
		Fallback: "I'm listening.",
		embedder: mock.New(),
	}
	for _, r := range responses {
		p.Responses = append(p.Responses, Response{Content: r})
	}
	return p
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]Message(nil), messages...))
	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return &Response{Content: m.Fallback}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedder.Embed(ctx, text)
}

func (m *StubProvider) Name() string {
	return "stub"
}

// CallCount returns how many Chat calls have been made.
func (m *StubProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the messages of the most recent Chat call.
func (m *StubProvider) LastCall() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}
