package corpus

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	got := NewChunker().SplitText("  one short paragraph.  ")
	if len(got) != 1 || got[0] != "one short paragraph." {
		t.Errorf("got %q", got)
	}
}

func TestSplitText_RespectsSizeAndOverlaps(t *testing.T) {
	var words []string
	for i := 0; i < 400; i++ {
		words = append(words, "слово")
	}
	text := strings.Join(words, " ")

	c := NewChunker(WithSize(100), WithOverlap(30))
	chunks := c.SplitText(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks {
		if n := utf8.RuneCountInString(ch); n > 100 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-len("слово"):]
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	got := NewChunker(WithSize(60), WithOverlap(10)).SplitText(p1 + "\n\n" + p2)
	if len(got) != 2 || got[0] != p1 || got[1] != p2 {
		t.Errorf("got %q, want the two paragraphs", got)
	}
}

func TestSplitText_WindowsUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 250)
	got := NewChunker(WithSize(100), WithOverlap(20)).SplitText(text)
	// windows start at 0, 80, 160
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	if len(got[2]) != 90 {
		t.Errorf("last window = %d runes, want 90", len(got[2]))
	}
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	c := NewChunker(WithSize(50), WithOverlap(80))
	if c.overlap >= c.size {
		t.Errorf("overlap %d not below size %d", c.overlap, c.size)
	}
}

func TestSplit_CarriesProvenance(t *testing.T) {
	units := []Unit{
		{Text: strings.Repeat("word ", 300), SourceID: "report.pdf", Page: 4},
		{Text: "slide text", SourceID: "deck.pptx", Slide: 2},
	}
	chunks := NewChunker().Split(units)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.SourceID != "report.pdf" || c.Page != 4 || c.Slide != 0 {
			t.Errorf("chunk provenance = %+v", c)
		}
	}
	last := chunks[len(chunks)-1]
	if last.SourceID != "deck.pptx" || last.Slide != 2 {
		t.Errorf("last chunk = %+v", last)
	}
}
