package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearch(t *testing.T) {
	var gotQuery, gotCount, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotToken = r.Header.Get("X-Subscription-Token")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"The Go language"},
			{"title":"Pkg","url":"https://pkg.go.dev","description":"Packages"},
			{"title":"Extra","url":"https://example.com","description":"dropped"}
		]}}`)
	}))
	defer srv.Close()

	tool := NewWebSearchTool("test-key", srv.URL, 5)
	raw, err := tool.Execute(context.Background(), Args{"golang generics", 2.0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotQuery != "golang generics" || gotCount != "2" || gotToken != "test-key" {
		t.Errorf("unexpected request q=%q count=%q token=%q", gotQuery, gotCount, gotToken)
	}

	value, progress := tool.Format(raw)
	hits := value.([]SearchHit)
	if len(hits) != 2 || hits[0].URL != "https://go.dev" {
		t.Errorf("unexpected hits %+v", hits)
	}
	if progress != "-- Results: 2" {
		t.Errorf("unexpected progress %q", progress)
	}
}

func TestWebSearchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewWebSearchTool("", srv.URL, 5).Execute(context.Background(), Args{"q", nil}); err == nil {
		t.Error("expected missing API key to fail")
	}
	_, err := NewWebSearchTool("key", srv.URL, 5).Execute(context.Background(), Args{"q", nil})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
	if _, err := NewWebSearchTool("key", srv.URL, 5).Execute(context.Background(), Args{"  ", nil}); err == nil {
		t.Error("expected empty query to fail")
	}
}

func TestFetchWebPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<!doctype html><html><head><title>Release notes</title></head><body>
				<nav>Home | About</nav>
				<article><h1>Release notes</h1>
				<p>The registry now validates tool arguments before execution. Invalid calls are reported back to the model so it can correct itself on the next turn.</p>
				<p>Tool failures are recorded in the conversation instead of stopping the session, which keeps long multi-step analyses alive.</p>
				<p>Each step of the loop asks the provider for exactly one tool call, executes it locally and appends the formatted result to the conversation. The next request is only sent after the result has been recorded, so every prompt sees the full history of earlier steps.</p>
				<p>A configurable step cap bounds the number of tool calls in a single run. When the cap is reached the agent stops asking for more work and goes straight to the summary, so a misbehaving model can never keep the process busy forever.</p>
				</article></body></html>`)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, strings.Repeat("a", 50))
		case "/missing":
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := NewFetchWebPageTool(0)
	raw, err := tool.Execute(context.Background(), Args{srv.URL + "/article", nil})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	r := raw.(*FetchResult)
	if !strings.Contains(r.Text, "validates tool arguments") {
		t.Errorf("article text not extracted: %q", r.Text)
	}
	if r.Truncated {
		t.Error("short article should not be truncated")
	}

	raw, err = tool.Execute(context.Background(), Args{srv.URL + "/plain", 10.0})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r := raw.(*FetchResult); r.Text != strings.Repeat("a", 10) || !r.Truncated {
		t.Errorf("unexpected plain result %+v", r)
	}

	if _, err := tool.Execute(context.Background(), Args{srv.URL + "/missing", nil}); err == nil {
		t.Error("expected 404 to fail")
	}
	if _, err := tool.Execute(context.Background(), Args{"file:///etc/passwd", nil}); err == nil {
		t.Error("expected non-http scheme to fail")
	}
}
