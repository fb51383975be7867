package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/codeprobe/errors"
)

const (
	defaultListDepth   = 1
	maxListDepth       = 5
	defaultChunkLines  = 400
	defaultGrepResults = 100
	maxFindResults     = 500
	maxMatchText       = 300
)

// ---------------------------------------------------------------------------
// list_directories
// ---------------------------------------------------------------------------

type ListDirectoriesResult struct {
	Directories []string `json:"directories"`
}

// ListDirectoriesTool lists the directories below a path.
type ListDirectoriesTool struct {
	ws *workspace
}

func (t *ListDirectoriesTool) Name() string { return "list_directories" }
func (t *ListDirectoriesTool) Description() string {
	return "Lists the directories inside a directory, optionally descending a few levels."
}
func (t *ListDirectoriesTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "Directory to list"},
		{Name: "depth", Type: TypeInteger, Description: "How many levels to descend (1-5, default 1)"},
	}
}

func (t *ListDirectoriesTool) Execute(ctx context.Context, args Args) (any, error) {
	path := args.String(0)
	depth := clamp(args.Int(1, defaultListDepth), 1, maxListDepth)

	root, err := t.ws.checkRead(path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(root); err != nil {
		return nil, errors.Wrapf(err, "cannot list '%s'", path)
	} else if !info.IsDir() {
		return nil, errors.New("'%s' is not a directory", path)
	}

	result := &ListDirectoriesResult{Directories: []string{}}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped rather than failing the listing.
			if p != root && d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == root || !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) || t.ws.isHidden(p) {
			return fs.SkipDir
		}
		result.Directories = append(result.Directories, display(path, root, p))
		if levels(root, p) >= depth {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list '%s'", path)
	}
	return result, nil
}

func (t *ListDirectoriesTool) Format(result any) (any, string) {
	r, ok := result.(*ListDirectoriesResult)
	if !ok {
		return result, ""
	}
	return r.Directories, fmt.Sprintf("-- Matches: %d", len(r.Directories))
}

// ---------------------------------------------------------------------------
// read_file_content
// ---------------------------------------------------------------------------

type ReadFileResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Chunk       int    `json:"chunk"`
	TotalChunks int    `json:"total_chunks"`
}

// ReadFileTool reads a file, one chunk of lines at a time.
type ReadFileTool struct {
	ws *workspace
}

func (t *ReadFileTool) Name() string { return "read_file_content" }
func (t *ReadFileTool) Description() string {
	return "Reads a text file in chunks of lines. Returns the chunk content and the total number of chunks."
}
func (t *ReadFileTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "File to read"},
		{Name: "chunk", Type: TypeInteger, Description: "Zero-based chunk index (default 0)"},
		{Name: "chunk_size", Type: TypeInteger, Description: fmt.Sprintf("Lines per chunk (default %d)", defaultChunkLines)},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args Args) (any, error) {
	path := args.String(0)
	chunk := args.Int(1, 0)
	size := args.Int(2, defaultChunkLines)
	if size <= 0 {
		size = defaultChunkLines
	}

	abs, err := t.ws.checkRead(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("'%s' is not a regular file", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file '%s'", path)
	}

	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	total := (len(lines) + size - 1) / size
	if total == 0 {
		total = 1
	}
	if chunk < 0 || chunk >= total {
		return nil, errors.New("chunk %d out of range: '%s' has %d chunk(s)", chunk, path, total)
	}

	start := chunk * size
	end := min(start+size, len(lines))
	var content string
	if start < end {
		content = strings.Join(lines[start:end], "")
	}
	return &ReadFileResult{Path: path, Content: content, Chunk: chunk, TotalChunks: total}, nil
}

func (t *ReadFileTool) Format(result any) (any, string) {
	r, ok := result.(*ReadFileResult)
	if !ok {
		return result, ""
	}
	return r, fmt.Sprintf("-- Chunk %d/%d", r.Chunk+1, r.TotalChunks)
}

// ---------------------------------------------------------------------------
// find_files
// ---------------------------------------------------------------------------

type FindFilesResult struct {
	Files []string `json:"files"`
}

// FindFilesTool finds files by glob pattern.
type FindFilesTool struct {
	ws *workspace
}

func (t *FindFilesTool) Name() string { return "find_files" }
func (t *FindFilesTool) Description() string {
	return "Finds files whose path matches a glob pattern (supports ** for any depth, e.g. **/*.go)."
}
func (t *FindFilesTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "pattern", Type: TypeString, Required: true, Description: "Glob pattern relative to path"},
		{Name: "path", Type: TypeString, Description: "Directory to search from (default .)"},
	}
}

func (t *FindFilesTool) Execute(ctx context.Context, args Args) (any, error) {
	pattern := args.String(0)
	base := args.String(1)
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.New("invalid glob pattern '%s'", pattern)
	}

	root, err := t.ws.checkRead(base)
	if err != nil {
		return nil, err
	}

	result := &FindFilesResult{Files: []string{}}
	err = doublestar.GlobWalk(os.DirFS(root), pattern, func(p string, d fs.DirEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		abs := filepath.Join(root, filepath.FromSlash(p))
		if d.IsDir() || t.ws.isHidden(abs) || inSkippedDir(p) {
			return nil
		}
		result.Files = append(result.Files, display(base, root, abs))
		if len(result.Files) >= maxFindResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, errors.Wrapf(err, "failed to search '%s'", pattern)
	}
	sort.Strings(result.Files)
	return result, nil
}

func (t *FindFilesTool) Format(result any) (any, string) {
	r, ok := result.(*FindFilesResult)
	if !ok {
		return result, ""
	}
	return r.Files, fmt.Sprintf("-- Matches: %d", len(r.Files))
}

// ---------------------------------------------------------------------------
// grep_search
// ---------------------------------------------------------------------------

type GrepMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type GrepSearchResult struct {
	Matches []GrepMatch `json:"matches"`
}

// GrepSearchTool searches file contents with a regular expression.
type GrepSearchTool struct {
	ws *workspace
}

func (t *GrepSearchTool) Name() string { return "grep_search" }
func (t *GrepSearchTool) Description() string {
	return "Searches the content of files below a directory for a regular expression and returns matching lines."
}
func (t *GrepSearchTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "pattern", Type: TypeString, Required: true, Description: "Regular expression (RE2 syntax)"},
		{Name: "path", Type: TypeString, Description: "Directory or file to search (default .)"},
		{Name: "include", Type: TypeString, Description: "Only search files matching this glob, e.g. *.go or src/**/*.ts"},
		{Name: "max_results", Type: TypeInteger, Description: fmt.Sprintf("Maximum matches to return (default %d)", defaultGrepResults)},
	}
}

func (t *GrepSearchTool) Execute(ctx context.Context, args Args) (any, error) {
	re, err := regexp.Compile(args.String(0))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern")
	}
	base := args.String(1)
	include := args.String(2)
	limit := args.Int(3, defaultGrepResults)
	if limit <= 0 {
		limit = defaultGrepResults
	}
	if include != "" && !doublestar.ValidatePattern(include) {
		return nil, errors.New("invalid include pattern '%s'", include)
	}

	root, err := t.ws.checkRead(base)
	if err != nil {
		return nil, err
	}

	result := &GrepSearchResult{Matches: []GrepMatch{}}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && (skipDir(d.Name()) || t.ws.isHidden(p)) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || t.ws.isHidden(p) {
			return nil
		}
		shown := display(base, root, p)
		if include != "" && !includes(include, root, p) {
			return nil
		}
		if err := grepFile(p, shown, re, limit, result); err != nil {
			return err
		}
		if len(result.Matches) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return nil, errors.Wrapf(err, "search failed")
	}
	return result, nil
}

func (t *GrepSearchTool) Format(result any) (any, string) {
	r, ok := result.(*GrepSearchResult)
	if !ok {
		return result, ""
	}
	return r.Matches, fmt.Sprintf("-- Matches: %d", len(r.Matches))
}

func grepFile(path, shown string, re *regexp.Regexp, limit int, result *GrepSearchResult) error {
	f, err := os.Open(path)
	if err != nil {
		// Unreadable files are not fatal to a search.
		return nil
	}
	defer f.Close()

	head := make([]byte, 8000)
	n, _ := f.Read(head)
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		text = truncateText(text, maxMatchText)
		result.Matches = append(result.Matches, GrepMatch{File: shown, Line: line, Text: text})
		if len(result.Matches) >= limit {
			break
		}
	}
	return nil
}

// includes matches the include glob against the path relative to root and
// against the bare file name.
func includes(pattern, root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
		return true
	}
	ok, _ := doublestar.Match(pattern, filepath.Base(path))
	return ok
}

// ---------------------------------------------------------------------------
// create_file
// ---------------------------------------------------------------------------

type CreateFileResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// CreateFileTool writes a new file, creating parent directories as needed.
type CreateFileTool struct {
	ws *workspace
}

func (t *CreateFileTool) Name() string { return "create_file" }
func (t *CreateFileTool) Description() string {
	return "Creates a file with the given content. Fails if the file exists unless overwrite is true."
}
func (t *CreateFileTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "File to create"},
		{Name: "content", Type: TypeString, Required: true, Description: "Full file content"},
		{Name: "overwrite", Type: TypeBoolean, Description: "Replace an existing file (default false)"},
	}
}

func (t *CreateFileTool) Execute(_ context.Context, args Args) (any, error) {
	path := args.String(0)
	content := args.String(1)
	overwrite := args.Bool(2)
	if path == "" {
		return nil, errors.New("path must not be empty")
	}

	abs, err := t.ws.checkWrite(path)
	if err != nil {
		return nil, err
	}

	verb := "Created"
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return nil, errors.New("'%s' is a directory", path)
		}
		if !overwrite {
			return nil, errors.New("file '%s' already exists", path)
		}
		verb = "Overwrote"
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directories for '%s'", path)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return nil, errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return &CreateFileResult{
		Success: true,
		Message: fmt.Sprintf("%s %s (%d bytes)", verb, path, len(content)),
		Path:    path,
	}, nil
}

func (t *CreateFileTool) Format(result any) (any, string) {
	r, ok := result.(*CreateFileResult)
	if !ok {
		return result, ""
	}
	return r, "-- " + r.Message
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// levels counts path separators between root and p.
func levels(root, p string) int {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

func inSkippedDir(slashPath string) bool {
	for _, part := range strings.Split(slashPath, "/") {
		if skipDir(part) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
