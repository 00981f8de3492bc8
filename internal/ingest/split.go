package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer converts between text and token IDs.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenTokenizer) Encode(text string) []int  { return t.enc.Encode(text, nil, nil) }
func (t tiktokenTokenizer) Decode(tokens []int) string { return t.enc.Decode(tokens) }

// NewTiktoken returns the tokenizer for a tiktoken encoding such as
// "cl100k_base".
func NewTiktoken(encoding string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("ingest: load encoding %q: %w", encoding, err)
	}
	return tiktokenTokenizer{enc: enc}, nil
}

// Splitter cuts text into overlapping windows of a fixed token count.
type Splitter struct {
	tok     Tokenizer
	size    int
	overlap int
}

// NewSplitter creates a Splitter. overlap must be smaller than size.
func NewSplitter(tok Tokenizer, size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ingest: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("ingest: chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{tok: tok, size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in document order. Windows that decode
// to whitespace only are dropped. Window edges are moved to token
// boundaries that begin a UTF-8 character, so a character encoded as
// several byte-level tokens is never cut in half.
func (s *Splitter) Split(text string) []string {
	tokens := s.tok.Encode(text)
	n := len(tokens)
	var chunks []string
	for start := 0; start < n; {
		end := min(start+s.size, n)
		for end > start+1 && !s.runeBoundary(tokens, end) {
			end--
		}
		if !s.runeBoundary(tokens, end) {
			// No clean cut inside the window; extend it to the next one.
			end = min(start+s.size, n)
			for !s.runeBoundary(tokens, end) {
				end++
			}
		}
		if chunk := strings.TrimSpace(s.tok.Decode(tokens[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		next := max(end-s.overlap, start+1)
		for next < end && !s.runeBoundary(tokens, next) {
			next++
		}
		start = next
	}
	return chunks
}

// runeBoundary reports whether cutting tokens before index i keeps every
// character whole: i is an end of the slice, or token i starts a character.
func (s *Splitter) runeBoundary(tokens []int, i int) bool {
	if i <= 0 || i >= len(tokens) {
		return true
	}
	b := s.tok.Decode(tokens[i : i+1])
	return b == "" || utf8.RuneStart(b[0])
}
