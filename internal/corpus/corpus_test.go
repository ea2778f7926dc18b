package corpus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/fabula/internal/util"
)

func TestResolve(t *testing.T) {
	l := NewLoader(map[string]string{
		"The Count of Monte Cristo": "monte.txt",
		"castaways":                 "castaways.txt",
	})

	cases := []struct {
		book string
		want string
	}{
		{"the count of monte cristo", "The Count of Monte Cristo"},
		{"In Search of the Castaways", "castaways"},
		{"  CASTAWAYS ", "castaways"},
		{"Count of Monte", "The Count of Monte Cristo"},
	}
	for _, tc := range cases {
		got, err := l.Resolve(tc.book)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", tc.book, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.book, got, tc.want)
		}
	}

	if _, err := l.Resolve("Moby Dick"); !errors.Is(err, ErrUnknownDocument) {
		t.Errorf("expected ErrUnknownDocument, got %v", err)
	}
	if _, err := l.Resolve(""); !errors.Is(err, ErrUnknownDocument) {
		t.Errorf("expected ErrUnknownDocument for empty name, got %v", err)
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	l := NewLoader(map[string]string{"war": "a.txt", "and": "b.txt"})
	if _, err := l.Resolve("war and peace"); !errors.Is(err, ErrAmbiguousDocument) {
		t.Errorf("expected ErrAmbiguousDocument, got %v", err)
	}
}

func TestLoad_TextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.txt")
	// BOM, CRLF and a decomposed é (e + combining acute)
	content := "\ufeffChapter 1\r\nEdmond Dante\u0301s sailed.\r\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(map[string]string{"monte": path})
	text, err := l.Load(context.Background(), "monte")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := "Chapter 1\nEdmond Dant\u00e9s sailed.\n"
	if text != want {
		t.Errorf("expected %q, got %q", want, text)
	}
}

func TestLoad_HTMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.html")
	page := `<html><head><title>ignored</title><style>p{}</style></head>
<body><h1>Chapter I</h1><p>Alice lived   in
Lisbon.</p><script>var x = 1;</script><p>She never left.</p></body></html>`
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		t.Fatal(err)
	}

	text, err := NewLoader(map[string]string{"alice": path}).Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := "Chapter I\nAlice lived in Lisbon.\nShe never left."
	if text != want {
		t.Errorf("expected %q, got %q", want, text)
	}
}

func TestLoad_Errors(t *testing.T) {
	l := NewLoader(map[string]string{
		"missing": filepath.Join(t.TempDir(), "nope.txt"),
		"remote":  "https://example.com/book.txt",
	})

	if _, err := l.Load(context.Background(), "unknown"); !errors.Is(err, ErrUnknownDocument) {
		t.Errorf("expected ErrUnknownDocument, got %v", err)
	}
	if _, err := l.Load(context.Background(), "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := l.Load(context.Background(), "remote"); err == nil {
		t.Error("expected error for URL source without a fetcher")
	}
}

func TestLoad_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
		case "/book.txt":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = fmt.Fprint(w, "It was the best of times.")
		case "/book.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = fmt.Fprint(w, "<p>It was the worst of times.</p>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	robots := util.NewRobotsChecker("Fabula/0.1", server.Client())
	fetcher := NewFetcher(server.Client(), "Fabula/0.1", 1<<20, robots)
	fetcher.limiter.SetRate(strings.TrimPrefix(server.URL, "http://"), 0, 1)
	l := NewLoader(map[string]string{
		"plain":   server.URL + "/book.txt",
		"html":    server.URL + "/book.html",
		"private": server.URL + "/private/book.txt",
	}, WithFetcher(fetcher))

	text, err := l.Load(context.Background(), "plain")
	if err != nil || text != "It was the best of times." {
		t.Errorf("unexpected plain load: %q, %v", text, err)
	}

	text, err = l.Load(context.Background(), "html")
	if err != nil || text != "It was the worst of times." {
		t.Errorf("unexpected html load: %q, %v", text, err)
	}

	if _, err := l.Load(context.Background(), "private"); !errors.Is(err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %v", err)
	}
}

func TestFetcher_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), "Fabula/0.1", 50, nil)
	if _, err := f.Fetch(context.Background(), server.URL); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	exact := NewFetcher(server.Client(), "Fabula/0.1", 100, nil)
	if _, err := exact.Fetch(context.Background(), server.URL); err != nil {
		t.Errorf("expected body at the limit to be accepted, got %v", err)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "OK")
	}))
	defer server.Close()

	origBackoff := fetchBackoffBase
	fetchBackoffBase = time.Millisecond
	defer func() { fetchBackoffBase = origBackoff }()

	f := NewFetcher(server.Client(), "Fabula/0.1", 1<<20, nil)
	f.limiter.SetRate(strings.TrimPrefix(server.URL, "http://"), 0, 1)

	result, err := f.FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if result.Body != "OK" {
		t.Errorf("Unexpected body: %s", result.Body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(server.Client(), "Fabula/0.1", 1<<20, nil)
	_, err := f.FetchWithRetry(context.Background(), server.URL)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt for a 404, got %d", attempts.Load())
	}
}

func TestVisibleText_Paragraphs(t *testing.T) {
	text, err := VisibleText(strings.NewReader("<div>One<br>Two</div><ul><li>Three</li><li>Four</li></ul>"))
	if err != nil {
		t.Fatalf("VisibleText failed: %v", err)
	}
	if text != "One\nTwo\nThree\nFour" {
		t.Errorf("unexpected text: %q", text)
	}
}
