package corpus

import (
	"strings"
	"unicode/utf8"

	"github.com/kalambet/sverka/internal/retrieval"
)

const (
	DefaultChunkSize    = 700
	DefaultChunkOverlap = 150
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text recursively on paragraph, line, sentence and word
// boundaries into pieces of at most size runes, adjacent pieces sharing up
// to overlap runes.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSize sets the maximum chunk length in runes.
func WithSize(n int) ChunkerOption {
	return func(c *Chunker) { c.size = n }
}

// WithOverlap sets the overlap between adjacent chunks in runes.
func WithOverlap(n int) ChunkerOption {
	return func(c *Chunker) { c.overlap = n }
}

// NewChunker returns a Chunker with 700-rune chunks and 150-rune overlap
// unless overridden.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap, separators: defaultSeparators}
	for _, opt := range opts {
		opt(c)
	}
	if c.size <= 0 {
		c.size = DefaultChunkSize
	}
	if c.overlap < 0 || c.overlap >= c.size {
		c.overlap = c.size / 5
	}
	return c
}

// Split chunks every unit, carrying its provenance onto each chunk.
func (c *Chunker) Split(units []Unit) []retrieval.Chunk {
	var chunks []retrieval.Chunk
	for _, u := range units {
		for _, text := range c.SplitText(u.Text) {
			chunks = append(chunks, retrieval.Chunk{
				Content:  text,
				SourceID: u.SourceID,
				Page:     u.Page,
				Slide:    u.Slide,
			})
		}
	}
	return chunks
}

// SplitText returns the trimmed, non-empty chunks of text.
func (c *Chunker) SplitText(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	var sep string
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return c.window(text)
	}

	var out, fitting []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if runeLen(piece) <= c.size {
			fitting = append(fitting, piece)
			continue
		}
		out = append(out, c.merge(fitting)...)
		fitting = nil
		out = append(out, c.split(piece, rest)...)
	}
	return append(out, c.merge(fitting)...)
}

// merge packs consecutive pieces into chunks no longer than size, starting
// each new chunk with the trailing pieces of the previous one that fit in
// overlap.
func (c *Chunker) merge(pieces []string) []string {
	var (
		out   []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.size && len(cur) > 0 {
			out = appendTrimmed(out, strings.Join(cur, ""))
			for len(cur) > 0 && (total > c.overlap || total+n > c.size) {
				total -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if len(cur) > 0 {
		out = appendTrimmed(out, strings.Join(cur, ""))
	}
	return out
}

// window cuts text with no usable separator into fixed rune windows.
func (c *Chunker) window(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		out = appendTrimmed(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
