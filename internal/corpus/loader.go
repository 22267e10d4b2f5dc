// Package corpus turns a project documents folder into retrievable chunks
// and reads checklist files.
package corpus

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Unit is an extracted piece of document text before chunking: a whole file,
// a PDF page or a presentation slide.
type Unit struct {
	Text     string
	SourceID string
	Page     int
	Slide    int
}

type extractor func(path, sourceID string) ([]Unit, error)

var extractors = map[string]extractor{
	".txt":  loadPlain,
	".md":   loadPlain,
	".html": loadHTML,
	".htm":  loadHTML,
	".pdf":  loadPDF,
	".docx": loadDOCX,
	".pptx": loadPPTX,
}

// Supported reports whether files with the given name are loaded.
func Supported(name string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load extracts text units from every supported file under dir, in path
// order. Unsupported files are ignored; files that fail to parse are skipped
// with a warning. A missing dir yields no units and no error.
func Load(dir string) ([]Unit, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !Supported(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	var units []Unit
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		sourceID := filepath.ToSlash(rel)
		extract := extractors[strings.ToLower(filepath.Ext(path))]

		got, err := extract(path, sourceID)
		if err != nil {
			slog.Warn("skipping unreadable document", "file", sourceID, "error", err)
			continue
		}
		for _, u := range got {
			if strings.TrimSpace(u.Text) != "" {
				units = append(units, u)
			}
		}
		slog.Debug("document loaded", "file", sourceID, "units", len(got))
	}
	return units, nil
}

func loadPlain(path, sourceID string) ([]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Unit{{Text: strings.ToValidUTF8(string(data), ""), SourceID: sourceID}}, nil
}

func loadHTML(path, sourceID string) ([]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := htmlText(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return []Unit{{Text: text, SourceID: sourceID}}, nil
}

// htmlText returns the visible text of an HTML document, whitespace
// collapsed, with script and style content dropped.
func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			parts = append(parts, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, " "), nil
}

func loadPDF(path, sourceID string) (units []Unit, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("reading pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "file", sourceID, "page", i, "error", err)
			continue
		}
		units = append(units, Unit{Text: text, SourceID: sourceID, Page: i})
	}
	return units, nil
}
