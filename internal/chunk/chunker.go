package chunk

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Defaults match the passage sizing used when the evidence index was tuned
const (
	DefaultMaxTokens = 800
	DefaultOverlap   = 100
)

// SentenceSplitter splits text into ordered sentences
type SentenceSplitter interface {
	Split(text string) []string
}

// SplitterFunc adapts a plain function to SentenceSplitter
type SplitterFunc func(text string) []string

// Split calls f(text)
func (f SplitterFunc) Split(text string) []string {
	return f(text)
}

// Chunker splits a document into overlapping, bounded-length passages
type Chunker struct {
	maxTokens int
	overlap   int
	splitter  SentenceSplitter
}

// Option configures a Chunker
type Option func(*Chunker)

// WithSplitter replaces the default punkt sentence tokenizer
func WithSplitter(s SentenceSplitter) Option {
	return func(c *Chunker) {
		c.splitter = s
	}
}

// New creates a chunker. maxTokens <= 0 falls back to DefaultMaxTokens.
// overlap <= 0 disables overlap.
func New(maxTokens, overlap int, opts ...Option) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	c := &Chunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		splitter:  PunktSplitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text into ordered passages.
//
// Sentences are accumulated greedily while tracking whitespace-token count.
// When the next sentence would push the buffer above maxTokens the buffer is
// emitted and the next one is seeded with the trailing overlap words of the
// emitted passage. A sentence longer than maxTokens is emitted whole; the
// limit is a soft cap and sentences are never split.
func (c *Chunker) Chunk(text string) []string {
	var (
		chunks []string
		buf    []string
		bufLen int
		fresh  int // sentences added since the last emit
	)

	for _, sent := range c.splitter.Split(text) {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		sentLen := len(strings.Fields(sent))

		// Only close a buffer that holds at least one new sentence, so a
		// passage never consists of carried-over overlap alone
		if fresh > 0 && bufLen+sentLen > c.maxTokens {
			closed := strings.Join(buf, " ")
			chunks = append(chunks, closed)
			buf, bufLen = c.seed(closed)
			fresh = 0
		}

		buf = append(buf, sent)
		bufLen += sentLen
		fresh++
	}

	if fresh > 0 {
		chunks = append(chunks, strings.Join(buf, " "))
	}

	return chunks
}

// seed returns the overlap buffer that starts the passage following closed
func (c *Chunker) seed(closed string) ([]string, int) {
	if c.overlap <= 0 {
		return nil, 0
	}
	words := strings.Fields(closed)
	if len(words) > c.overlap {
		words = words[len(words)-c.overlap:]
	}
	return []string{strings.Join(words, " ")}, len(words)
}

var (
	punktOnce      sync.Once
	punktTokenizer *sentences.DefaultSentenceTokenizer
	punktErr       error
)

// PunktSplitter returns a splitter backed by the English punkt model.
// The model is loaded once per process. If it cannot be loaded the splitter
// falls back to a terminator-based heuristic.
func PunktSplitter() SentenceSplitter {
	return SplitterFunc(func(text string) []string {
		punktOnce.Do(func() {
			punktTokenizer, punktErr = english.NewSentenceTokenizer(nil)
		})
		if punktErr != nil {
			return SplitTerminators(text)
		}

		tokens := punktTokenizer.Tokenize(text)
		out := make([]string, 0, len(tokens))
		for _, s := range tokens {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
		return out
	})
}

// SplitTerminators splits on '.', '!' and '?' followed by whitespace
func SplitTerminators(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' || runes[i+1] == '\r' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
