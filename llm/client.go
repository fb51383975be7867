package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

// Request is one round trip to a model backend.
type Request struct {
	System    string
	Messages  []session.Message
	Functions []tools.Definition
	MaxTokens int
}

// Response carries the model's text and at most one tool call.
type Response struct {
	Content string
	Call    *tools.Call
}

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// MockResponse is one scripted reply of a MockLLMClient.
type MockResponse struct {
	Response *Response
	Err      error
}

// MockLLMClient replays scripted responses in order and records every
// request it receives. Once the script is exhausted it returns an empty
// response.
type MockLLMClient struct {
	mu        sync.Mutex
	responses []MockResponse
	requests  []Request
}

func NewMockLLMClient(responses ...MockResponse) *MockLLMClient {
	return &MockLLMClient{responses: responses}
}

func (m *MockLLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = append([]session.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.responses) == 0 {
		return &Response{}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	if next.Response == nil {
		return &Response{}, nil
	}
	return next.Response, nil
}

// Requests returns the requests seen so far.
func (m *MockLLMClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Text is a scripted plain-text reply.
func Text(content string) MockResponse {
	return MockResponse{Response: &Response{Content: content}}
}

// Call is a scripted tool call reply.
func Call(name string, args map[string]any) MockResponse {
	return MockResponse{Response: &Response{Call: &tools.Call{Name: name, Arguments: args}}}
}

// Fail is a scripted request failure.
func Fail(msg string) MockResponse {
	return MockResponse{Err: errors.New("%s", msg)}
}

// turn is a run of consecutive same-role messages collapsed into one.
type turn struct {
	role    session.Role
	content string
}

// mergeTurns folds system messages into the system prompt and joins
// consecutive messages of the same role, for backends that require strict
// user/assistant alternation starting with the user.
func mergeTurns(system string, messages []session.Message) ([]turn, string) {
	var systems []string
	if system != "" {
		systems = append(systems, system)
	}
	var turns []turn
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			systems = append(systems, msg.Content)
			continue
		}
		role := session.RoleUser
		if msg.Role == session.RoleAssistant {
			role = session.RoleAssistant
		}
		if len(turns) == 0 && role != session.RoleUser {
			turns = append(turns, turn{role: session.RoleUser, content: "Continue."})
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].content += "\n\n" + msg.Content
			continue
		}
		turns = append(turns, turn{role: role, content: msg.Content})
	}
	return turns, strings.Join(systems, "\n\n")
}
