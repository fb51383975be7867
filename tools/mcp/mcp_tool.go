// Package mcp exposes the tools of external Model Context Protocol servers as
// ordinary registry tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/m4xw311/codeprobe/config"
	"github.com/m4xw311/codeprobe/errors"
	"github.com/m4xw311/codeprobe/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient manages the connection to a single MCP server subprocess.
type MCPClient struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*MCPTool
}

// NewMCPClient starts the MCP server subprocess and discovers its tools.
func NewMCPClient(ctx context.Context, name, command string, args []string) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "codeprobe", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &MCPClient{Name: name, cmd: cmd, conn: conn}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			client.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			schema, err := json.Marshal(t.InputSchema)
			if err != nil {
				slog.Warn("Skipping MCP tool with unreadable schema", "server", name, "tool", t.Name, "err", err)
				continue
			}
			client.tools = append(client.tools, &MCPTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				params:      parseInputSchema(schema),
				call:        client.callTool,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	slog.Info("Initialized MCP client", "server", name, "tools", len(client.tools))
	return client, nil
}

// StartAll starts every configured server. Servers that fail are logged and
// skipped.
func StartAll(ctx context.Context, servers []config.MCPServer) []*MCPClient {
	var clients []*MCPClient
	for _, s := range servers {
		c, err := NewMCPClient(ctx, s.Name, s.Command, s.Args)
		if err != nil {
			slog.Warn("MCP server unavailable", "server", s.Name, "err", err)
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

// Tools returns the server's tools in discovery order.
func (c *MCPClient) Tools() []tools.Tool {
	out := make([]tools.Tool, len(c.tools))
	for i, t := range c.tools {
		out[i] = t
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		slog.Info("Terminating MCP server", "server", c.Name)
		return c.cmd.Process.Kill()
	}
	return nil
}

func (c *MCPClient) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", name)
	}
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	out := strings.Join(parts, "")
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", name, out)
	}
	return out, nil
}

// MCPTool represents a tool available from an external MCP server.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	params      []tools.Parameter
	call        func(ctx context.Context, name string, args map[string]any) (string, error)
}

// Name returns the server's own tool name. Qualified names such as
// "<server>:<tool>" are rejected by some providers.
func (t *MCPTool) Name() string { return t.toolName }

func (t *MCPTool) Description() string {
	if t.description == "" {
		return fmt.Sprintf("Tool %s provided by MCP server %s.", t.toolName, t.serverName)
	}
	return t.description
}

func (t *MCPTool) Parameters() []tools.Parameter { return t.params }

// Execute rebuilds the named arguments and forwards the call to the server.
func (t *MCPTool) Execute(ctx context.Context, args tools.Args) (any, error) {
	named := make(map[string]any, len(t.params))
	for i, p := range t.params {
		if v := args.Value(i); v != nil {
			named[p.Name] = v
		}
	}
	return t.call(ctx, t.toolName, named)
}

func (t *MCPTool) Format(result any) (any, string) {
	return result, fmt.Sprintf("-- %s/%s done", t.serverName, t.toolName)
}

type inputSchema struct {
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
		Items       *struct {
			Type any `json:"type"`
		} `json:"items"`
	} `json:"properties"`
	Required []string `json:"required"`
}

// parseInputSchema derives an ordered parameter list from a JSON schema:
// required properties in schema order, then optional ones by name.
func parseInputSchema(raw []byte) []tools.Parameter {
	var s inputSchema
	if err := json.Unmarshal(raw, &s); err != nil || len(s.Properties) == 0 {
		return nil
	}

	required := map[string]bool{}
	var params []tools.Parameter
	for _, name := range s.Required {
		prop, ok := s.Properties[name]
		if !ok || required[name] {
			continue
		}
		required[name] = true
		p := tools.Parameter{Name: name, Type: schemaType(prop.Type), Description: prop.Description, Required: true}
		if prop.Items != nil {
			p.Items = itemType(prop.Items.Type)
		}
		params = append(params, p)
	}

	var optional []string
	for name := range s.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		prop := s.Properties[name]
		p := tools.Parameter{Name: name, Type: schemaType(prop.Type), Description: prop.Description}
		if prop.Items != nil {
			p.Items = itemType(prop.Items.Type)
		}
		params = append(params, p)
	}
	return params
}

// schemaType picks the first non-null JSON schema type; anything the
// validator does not know becomes object.
func schemaType(v any) string {
	var candidates []string
	switch t := v.(type) {
	case string:
		candidates = []string{t}
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}
	for _, c := range candidates {
		switch c {
		case tools.TypeString, tools.TypeNumber, tools.TypeInteger, tools.TypeBoolean, tools.TypeArray, tools.TypeObject:
			return c
		}
	}
	return tools.TypeObject
}

func itemType(v any) string {
	switch t := schemaType(v); t {
	case tools.TypeString, tools.TypeNumber, tools.TypeInteger, tools.TypeBoolean:
		return t
	}
	return ""
}
