package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	var opts []func(*config.LoadOptions) error
	if os.Getenv("AWS_REGION") == "" && os.Getenv("AWS_DEFAULT_REGION") == "" {
		opts = append(opts, config.WithRegion("us-east-1"))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	// Custom endpoint, useful for testing.
	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &BedrockLLMClient{client: client, modelID: modelID}, nil
}

func (b *BedrockLLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	messages, systemPrompt := convertMessagesToAnthropicFormat(req.System, req.Messages)
	requestBody, err := createAnthropicRequest(messages, systemPrompt, req.Functions, req.MaxTokens)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

func convertMessagesToAnthropicFormat(system string, messages []session.Message) ([]map[string]any, string) {
	turns, systemPrompt := mergeTurns(system, messages)
	var out []map[string]any
	for _, t := range turns {
		out = append(out, map[string]any{
			"role": string(t.role),
			"content": []map[string]any{
				{"type": "text", "text": t.content},
			},
		})
	}
	return out, systemPrompt
}

func createAnthropicRequest(messages []map[string]any, systemPrompt string, defs []tools.Definition, maxTokens int) ([]byte, error) {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	request := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(defs) > 0 {
		var ts []map[string]any
		for _, d := range defs {
			ts = append(ts, map[string]any{
				"name":         d.Name,
				"description":  d.Description,
				"input_schema": d.JSONSchema(),
			})
		}
		request["tools"] = ts
	}
	return json.Marshal(request)
}

type bedrockContent struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type bedrockResponse struct {
	Content []bedrockContent `json:"content"`
	Error   any              `json:"error"`
}

func processBedrockResponse(body []byte) (*Response, error) {
	var response bedrockResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return nil, errors.New("Bedrock API error: %v", response.Error)
	}

	out := &Response{}
	for _, item := range response.Content {
		switch item.Type {
		case "text":
			out.Content += item.Text
		case "tool_use":
			if out.Call != nil || item.Name == "" {
				continue
			}
			args := item.Input
			if args == nil {
				args = map[string]any{}
			}
			out.Call = &tools.Call{Name: item.Name, Arguments: args}
		}
	}
	return out, nil
}
