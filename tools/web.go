package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/m4xw311/codeprobe/errors"
)

const (
	braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"
	webUserAgent        = "Mozilla/5.0 (compatible; codeprobe/1.0)"
	maxRedirects        = 5
	defaultFetchChars   = 20000
	maxFetchBytes       = 5 << 20
)

// ---------------------------------------------------------------------------
// web_search
// ---------------------------------------------------------------------------

type SearchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type WebSearchResult struct {
	Results []SearchHit `json:"results"`
}

// WebSearchTool searches the web using the Brave Search API.
type WebSearchTool struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewWebSearchTool creates a WebSearchTool. An empty endpoint selects the
// public Brave API; maxResults defaults to 5.
func NewWebSearchTool(apiKey, endpoint string, maxResults int) *WebSearchTool {
	if endpoint == "" {
		endpoint = braveSearchEndpoint
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{
		apiKey:     apiKey,
		endpoint:   endpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Searches the web. Returns titles, URLs and snippets."
}
func (t *WebSearchTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "query", Type: TypeString, Required: true, Description: "Search query"},
		{Name: "count", Type: TypeInteger, Description: "Number of results (1-10)"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args Args) (any, error) {
	if t.apiKey == "" {
		return nil, errors.New("BRAVE_API_KEY environment variable not set")
	}
	query := strings.TrimSpace(args.String(0))
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	n := clamp(args.Int(1, t.maxResults), 1, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build search request")
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", n))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "search request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New("search returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var data struct {
		Web struct {
			Results []SearchHit `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse search response")
	}

	hits := data.Web.Results
	if len(hits) > n {
		hits = hits[:n]
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return &WebSearchResult{Results: hits}, nil
}

func (t *WebSearchTool) Format(result any) (any, string) {
	r, ok := result.(*WebSearchResult)
	if !ok {
		return result, ""
	}
	return r.Results, fmt.Sprintf("-- Results: %d", len(r.Results))
}

// ---------------------------------------------------------------------------
// fetch_web_page
// ---------------------------------------------------------------------------

type FetchResult struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// FetchWebPageTool downloads a URL and extracts its readable text.
type FetchWebPageTool struct {
	maxChars   int
	httpClient *http.Client
}

// NewFetchWebPageTool creates a FetchWebPageTool. maxChars defaults to 20000.
func NewFetchWebPageTool(maxChars int) *FetchWebPageTool {
	if maxChars <= 0 {
		maxChars = defaultFetchChars
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &FetchWebPageTool{maxChars: maxChars, httpClient: client}
}

func (t *FetchWebPageTool) Name() string { return "fetch_web_page" }
func (t *FetchWebPageTool) Description() string {
	return "Fetches a web page and returns its readable text. Use after web_search to read a result."
}
func (t *FetchWebPageTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "url", Type: TypeString, Required: true, Description: "http or https URL"},
		{Name: "max_chars", Type: TypeInteger, Description: "Maximum characters of text to return"},
	}
}

func (t *FetchWebPageTool) Execute(ctx context.Context, args Args) (any, error) {
	rawURL := args.String(0)
	u, err := parseWebURL(rawURL)
	if err != nil {
		return nil, err
	}
	maxChars := args.Int(1, t.maxChars)
	if maxChars <= 0 {
		maxChars = t.maxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request")
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch '%s'", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errors.New("fetching '%s' returned %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", rawURL)
	}

	result := &FetchResult{URL: resp.Request.URL.String()}
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") || looksLikeHTML(body) {
		article, err := readability.FromReader(bytes.NewReader(body), resp.Request.URL)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract content from '%s'", rawURL)
		}
		result.Title = article.Title
		result.Text = strings.TrimSpace(article.TextContent)
	} else {
		result.Text = string(body)
	}

	if r := []rune(result.Text); len(r) > maxChars {
		result.Text = string(r[:maxChars])
		result.Truncated = true
	}
	return result, nil
}

func (t *FetchWebPageTool) Format(result any) (any, string) {
	r, ok := result.(*FetchResult)
	if !ok {
		return result, ""
	}
	return r, fmt.Sprintf("-- Fetched %d chars", len([]rune(r.Text)))
}

func parseWebURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL '%s'", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("only http/https URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host in URL '%s'", rawURL)
	}
	return u, nil
}

func looksLikeHTML(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}
