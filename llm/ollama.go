package llm

import (
	"context"
	"net/http"
	"net/url"
	"os"

	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
	"github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaLLMClient talks to a local or remote Ollama server.
type OllamaLLMClient struct {
	client *api.Client
	model  string
}

// NewOllamaLLMClient connects to OLLAMA_HOST, or the local default.
func NewOllamaLLMClient(ctx context.Context, modelName string) (*OllamaLLMClient, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	return newOllamaLLMClient(host, modelName, http.DefaultClient)
}

func newOllamaLLMClient(host, modelName string, httpClient *http.Client) (*OllamaLLMClient, error) {
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Ollama URL %q", host)
	}
	return &OllamaLLMClient{
		client: api.NewClient(parsedURL, httpClient),
		model:  modelName,
	}, nil
}

func (o *OllamaLLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:    o.model,
		Messages: convertMessagesToOllama(req.System, req.Messages),
		Tools:    convertToolsToOllama(req.Functions),
		Stream:   &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	out := &Response{}
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.Content += resp.Message.Content
		if out.Call == nil && len(resp.Message.ToolCalls) > 0 {
			fn := resp.Message.ToolCalls[0].Function
			args := map[string]any(fn.Arguments)
			if args == nil {
				args = map[string]any{}
			}
			out.Call = &tools.Call{Name: fn.Name, Arguments: args}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Ollama")
	}
	return out, nil
}

func convertMessagesToOllama(system string, messages []session.Message) []api.Message {
	var out []api.Message
	if system != "" {
		out = append(out, api.Message{Role: "system", Content: system})
	}
	for _, msg := range messages {
		out = append(out, api.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

func convertToolsToOllama(defs []tools.Definition) []api.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]api.Tool, 0, len(defs))
	for _, d := range defs {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   []string{},
			Properties: make(map[string]api.ToolProperty, len(d.Parameters)),
		}
		for _, p := range d.Parameters {
			prop := api.ToolProperty{
				Type:        api.PropertyType{p.Type},
				Description: p.Description,
			}
			if p.Type == tools.TypeArray {
				items := p.Items
				if items == "" {
					items = tools.TypeString
				}
				prop.Items = map[string]any{"type": items}
			}
			params.Properties[p.Name] = prop
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
