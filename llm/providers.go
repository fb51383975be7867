package llm

import (
	"context"
	"sort"
	"strings"

	"github.com/m4xw311/codeprobe/errors"
)

type backend struct {
	defaultModel string
	newClient    func(ctx context.Context, model string) (LLMClient, error)
}

var backends = map[string]backend{
	"openai":    {"gpt-4o-mini", adapt(NewOpenAILLMClient)},
	"anthropic": {"claude-3-5-haiku-latest", adapt(NewAnthropicLLMClient)},
	"gemini":    {"gemini-1.5-flash", adapt(NewGeminiLLMClient)},
	"bedrock":   {"anthropic.claude-3-haiku-20240307-v1:0", adapt(NewBedrockLLMClient)},
	"ollama":    {"llama3.1:latest", adapt(NewOllamaLLMClient)},
}

// adapt keeps a failed constructor from producing a typed nil LLMClient.
func adapt[T LLMClient](fn func(context.Context, string) (T, error)) func(context.Context, string) (LLMClient, error) {
	return func(ctx context.Context, model string) (LLMClient, error) {
		c, err := fn(ctx, model)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Available returns the provider names in alphabetical order.
func Available() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered provider.
func Known(name string) bool {
	_, ok := backends[name]
	return ok
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(name string) string {
	return backends[name].defaultModel
}

// NewClient builds the backend for the named provider. An empty model selects
// the provider's default.
func NewClient(ctx context.Context, name, model string) (LLMClient, error) {
	b, ok := backends[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownProvider, "%s (available: %s)", name, strings.Join(Available(), ", "))
	}
	if model == "" {
		model = b.defaultModel
	}
	c, err := b.newClient(ctx, model)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s client", name)
	}
	return c, nil
}
