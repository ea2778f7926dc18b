// Package corpus resolves book names to reference documents and loads their text.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnknownDocument is returned when a book name matches no configured document
	ErrUnknownDocument = errors.New("no document configured for book")
	// ErrAmbiguousDocument is returned when a book name matches several documents equally well
	ErrAmbiguousDocument = errors.New("book matches several documents")
)

// Loader maps document names to sources (file paths or http(s) URLs)
type Loader struct {
	sources map[string]string
	fetcher *Fetcher
	logger  *slog.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithFetcher enables http(s) sources
func WithFetcher(f *Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader over name -> source mappings
func NewLoader(sources map[string]string, opts ...Option) *Loader {
	l := &Loader{
		sources: make(map[string]string, len(sources)),
		logger:  slog.New(slog.DiscardHandler),
	}
	for name, src := range sources {
		l.sources[name] = src
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Names returns the configured document names in sorted order
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.sources))
	for name := range l.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a dataset book name onto a configured document name.
// An exact case-insensitive match wins. Otherwise the longest document name
// that contains, or is contained in, the book name is chosen.
func (l *Loader) Resolve(book string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(book))
	if key == "" {
		return "", fmt.Errorf("%w: empty book name", ErrUnknownDocument)
	}

	var best []string
	bestLen := 0
	for _, name := range l.Names() {
		lower := strings.ToLower(name)
		if lower == key {
			return name, nil
		}
		if !strings.Contains(key, lower) && !strings.Contains(lower, key) {
			continue
		}
		switch {
		case len(lower) > bestLen:
			best = []string{name}
			bestLen = len(lower)
		case len(lower) == bestLen:
			best = append(best, name)
		}
	}

	switch len(best) {
	case 0:
		return "", fmt.Errorf("%w: %q (configured: %s)", ErrUnknownDocument, book, strings.Join(l.Names(), ", "))
	case 1:
		return best[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousDocument, book, strings.Join(best, ", "))
	}
}

// Load returns the text of the named document, NFC-normalized with Unix line endings
func (l *Loader) Load(ctx context.Context, name string) (string, error) {
	src, ok := l.sources[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDocument, name)
	}

	var (
		text string
		err  error
	)
	if isURL(src) {
		text, err = l.loadURL(ctx, src)
	} else {
		text, err = l.loadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}

	l.logger.Debug("document loaded", "name", name, "source", src, "bytes", len(text))
	return clean(text), nil
}

func (l *Loader) loadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if isHTML(path) {
		return VisibleText(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Loader) loadURL(ctx context.Context, rawURL string) (string, error) {
	if l.fetcher == nil {
		return "", fmt.Errorf("remote documents are not enabled: %s", rawURL)
	}

	result, err := l.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if strings.Contains(result.ContentType, "html") || isHTML(result.FinalURL) {
		return VisibleText(strings.NewReader(result.Body))
	}
	return result.Body, nil
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func isHTML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm" || ext == ".xhtml"
}

func clean(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return norm.NFC.String(text)
}
