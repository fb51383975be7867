package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

const (
	planMaxTokens           = 1000
	defaultSummaryMaxTokens = 600
)

// FunctionCallRequest asks for the next tool call.
type FunctionCallRequest struct {
	MaxTokens int
	Functions []tools.Definition
}

// Provider is the decision-making service behind the agent loop.
type Provider interface {
	// GetPlan returns an execution plan for the user's query.
	GetPlan(ctx context.Context, userInput string) (string, error)
	// GetFunctionCall returns the next tool call, or nil when the work is
	// complete.
	GetFunctionCall(ctx context.Context, req FunctionCallRequest) (*tools.Call, error)
	// GetSummary always returns displayable text, even on failure.
	GetSummary(ctx context.Context, maxTokens int) string
}

// Adapter implements Provider on top of a chat backend, reading and writing
// the conversation held in a session.
type Adapter struct {
	client  LLMClient
	session *session.Session
	catalog []tools.Definition

	// Env is shown in the function-call prompt.
	Env Environment
}

// NewAdapter binds client to sess. catalog is the tool list shown while
// planning.
func NewAdapter(client LLMClient, sess *session.Session, catalog []tools.Definition) *Adapter {
	return &Adapter{
		client:  client,
		session: sess,
		catalog: catalog,
		Env:     CurrentEnvironment(),
	}
}

// GetPlan sends only the query. The session is left untouched.
func (a *Adapter) GetPlan(ctx context.Context, userInput string) (string, error) {
	resp, err := a.client.Chat(ctx, Request{
		System:    planPrompt(a.catalog),
		Messages:  []session.Message{{Role: session.RoleUser, Content: userInput}},
		MaxTokens: planMaxTokens,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to generate plan")
	}
	plan := strings.TrimSpace(resp.Content)
	if plan == "" {
		return "", errors.New("provider returned an empty plan")
	}
	return plan, nil
}

// GetFunctionCall replays the whole session. Whatever the model answers is
// recorded under the session's next role.
func (a *Adapter) GetFunctionCall(ctx context.Context, req FunctionCallRequest) (*tools.Call, error) {
	resp, err := a.client.Chat(ctx, Request{
		System:    functionCallPrompt(a.Env, req.Functions, a.session.Plan(), req.MaxTokens),
		Messages:  a.session.Messages(),
		Functions: req.Functions,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get next function call")
	}

	text := strings.TrimSpace(resp.Content)
	if resp.Call == nil {
		if text != "" {
			a.session.AddMessage(a.session.NextRole(), text)
		}
		return nil, nil
	}

	call := *resp.Call
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode arguments of %s", call.Name)
	}
	record := fmt.Sprintf("Calling %s with arguments %s", call.Name, args)
	if text != "" {
		record = text + "\n\n" + record
	}
	a.session.AddMessage(a.session.NextRole(), record)
	return &call, nil
}

// GetSummary never fails. Request errors and empty replies become
// explanatory text that is not stored in the session.
func (a *Adapter) GetSummary(ctx context.Context, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = defaultSummaryMaxTokens
	}
	resp, err := a.client.Chat(ctx, Request{
		System:    summaryPrompt(a.session.Plan(), maxTokens),
		Messages:  a.session.Messages(),
		MaxTokens: maxTokens,
	})
	if err != nil {
		slog.Warn("Summary request failed", "err", err)
		return fmt.Sprintf("Error generating summary: %v", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "Could not generate a summary of the analysis."
	}
	a.session.AddMessage(a.session.NextRole(), summary)
	return summary
}
