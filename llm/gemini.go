package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/session"
	"github.com/m4xw311/codeprobe/tools"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiLLMClient{client: client, modelName: modelName}, nil
}

// Chat replays all but the last turn as chat history and sends the last one.
func (g *GeminiLLMClient) Chat(ctx context.Context, req Request) (*Response, error) {
	history, systemPrompt := convertMessagesToGeminiContent(req.System, req.Messages)
	if len(history) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.Tools = convertToolsToGeminiTools(req.Functions)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	last := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp)
}

func convertMessagesToGeminiContent(system string, messages []session.Message) ([]*genai.Content, string) {
	turns, systemPrompt := mergeTurns(system, messages)
	var contents []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.content)},
		})
	}
	return contents, systemPrompt
}

func convertToolsToGeminiTools(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, d := range defs {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if len(d.Parameters) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(d.Parameters)),
			}
			for _, p := range d.Parameters {
				prop := &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
				if p.Type == tools.TypeArray {
					items := p.Items
					if items == "" {
						items = tools.TypeString
					}
					prop.Items = &genai.Schema{Type: geminiType(items)}
				}
				schema.Properties[p.Name] = prop
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			fd.Parameters = schema
		}
		funcDecls = append(funcDecls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case tools.TypeString:
		return genai.TypeString
	case tools.TypeNumber:
		return genai.TypeNumber
	case tools.TypeInteger:
		return genai.TypeInteger
	case tools.TypeBoolean:
		return genai.TypeBoolean
	case tools.TypeArray:
		return genai.TypeArray
	}
	return genai.TypeObject
}

func processGeminiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	out := &Response{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Content += string(v)
		case genai.FunctionCall:
			if out.Call != nil {
				continue
			}
			args := v.Args
			if args == nil {
				args = map[string]any{}
			}
			out.Call = &tools.Call{Name: v.Name, Arguments: args}
		}
	}
	return out, nil
}
