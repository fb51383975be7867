package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	// The &c is required, dn not replace and just use c
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

func (o *OpenAILLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenaiContent(req.System, req.Messages),
		Tools:    convertToolsToOpenAITools(req.Functions),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return processOpenaiResponse(resp)
}

// processOpenaiResponse keeps the text and the first tool call.
func processOpenaiResponse(resp *openai.ChatCompletion) (*Response, error) {
	if len(resp.Choices) == 0 {
		return &Response{}, nil
	}
	choice := resp.Choices[0].Message
	out := &Response{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI")
		}
		out.Call = &tools.Call{Name: tc.Function.Name, Arguments: args}
	}
	return out, nil
}

func convertMessagesToOpenaiContent(system string, messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		chatMessages = append(chatMessages, openai.SystemMessage(system))
	}
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			chatMessages = append(chatMessages, openai.AssistantMessage(msg.Content))
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

func convertToolsToOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, d := range defs {
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  openai.FunctionParameters(d.JSONSchema()),
		}))
	}
	return openAITools
}

// decodeArguments parses a JSON argument object. Empty input is an empty map.
func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
