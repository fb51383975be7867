package llm

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicLLMClient(ctx context.Context, modelName string) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicLLMClient{
		client: &client,
		model:  modelName,
	}, nil
}

func (a *AnthropicLLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	messages, systemPrompt := convertMessagesToAnthropicMessages(req.System, req.Messages)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	for _, toolParam := range convertToolsToAnthropicTools(req.Functions) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return processAnthropicResponse(resp)
}

func convertMessagesToAnthropicMessages(system string, messages []session.Message) ([]anthropic.MessageParam, string) {
	turns, systemPrompt := mergeTurns(system, messages)
	var out []anthropic.MessageParam
	for _, t := range turns {
		if t.role == session.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.content)))
		}
	}
	return out, systemPrompt
}

func convertToolsToAnthropicTools(defs []tools.Definition) []anthropic.ToolParam {
	var anthropicTools []anthropic.ToolParam
	for _, d := range defs {
		schema := d.JSONSchema()
		required, _ := schema["required"].([]string)
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		})
	}
	return anthropicTools
}

// processAnthropicResponse joins the text blocks and keeps the first tool use.
func processAnthropicResponse(resp *anthropic.Message) (*Response, error) {
	out := &Response{}
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += c.Text
		case anthropic.ToolUseBlock:
			if out.Call != nil {
				continue
			}
			args, err := decodeArguments(string(c.Input))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call input")
			}
			out.Call = &tools.Call{Name: c.Name, Arguments: args}
		}
	}
	return out, nil
}
