// Package taxonomy holds the category taxonomy and the cascading classifier
// that assigns remark groups to it.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Taxonomy is the set of known major categories and sub-categories. It is
// safe for concurrent use; additions are append-if-absent.
type Taxonomy struct {
	mu     sync.RWMutex
	majors []string
	subs   []string
}

// file is the on-disk contract.
type file struct {
	MajorCategories []string `json:"major_categories"`
	SubCategories   []string `json:"sub_categories"`
}

// New returns a taxonomy holding the given categories, duplicates dropped.
func New(majors, subs []string) *Taxonomy {
	t := &Taxonomy{}
	for _, m := range majors {
		t.AddMajor(m)
	}
	for _, s := range subs {
		t.AddSub(s)
	}
	return t
}

// Load reads a taxonomy file. A missing file yields an empty taxonomy.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing taxonomy %s: %w", path, err)
	}
	return New(f.MajorCategories, f.SubCategories), nil
}

// Save writes the taxonomy to path atomically, creating parent directories.
func (t *Taxonomy) Save(path string) error {
	t.mu.RLock()
	f := file{MajorCategories: clone(t.majors), SubCategories: clone(t.subs)}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating taxonomy directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".taxonomy-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing taxonomy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing taxonomy: %w", err)
	}
	return nil
}

// Majors returns a copy of the major categories in insertion order.
func (t *Taxonomy) Majors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return clone(t.majors)
}

// Subs returns a copy of the sub-categories in insertion order.
func (t *Taxonomy) Subs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return clone(t.subs)
}

// AddMajor appends name unless an entry equal to it ignoring case exists.
// It returns the stored spelling and whether name was added.
func (t *Taxonomy) AddMajor(name string) (string, bool) {
	return t.add(&t.majors, name)
}

// AddSub is AddMajor for sub-categories.
func (t *Taxonomy) AddSub(name string) (string, bool) {
	return t.add(&t.subs, name)
}

func (t *Taxonomy) add(list *[]string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := find(*list, name); ok {
		return existing, false
	}
	*list = append(*list, name)
	return name, true
}

// find returns the entry of list equal to name ignoring case.
func find(list []string, name string) (string, bool) {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
