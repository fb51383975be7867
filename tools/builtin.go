package tools

import (
	"os"

	"github.com/m4xw311/codeprobe/config"
)

// Builtin returns the default tool set rooted at root.
func Builtin(cfg *config.Config, root string) []Tool {
	ws := newWorkspace(root, cfg.FilesystemAccess)
	return []Tool{
		&ListDirectoriesTool{ws: ws},
		&ReadFileTool{ws: ws},
		&GrepSearchTool{ws: ws},
		&FindFilesTool{ws: ws},
		&CreateFileTool{ws: ws},
		NewWebSearchTool(os.Getenv("BRAVE_API_KEY"), cfg.WebSearch.Endpoint, cfg.WebSearch.MaxResults),
		NewFetchWebPageTool(0),
		&GitApplyTool{ws: ws},
	}
}

// RegisterAll registers every tool, stopping at the first failure.
func (r *ToolRegistry) RegisterAll(ts []Tool) error {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
