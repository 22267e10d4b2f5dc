package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestAdd_AppendIfAbsent(t *testing.T) {
	tax := New([]string{"Finance", "finance", "Safety"}, nil)
	if got := tax.Majors(); !reflect.DeepEqual(got, []string{"Finance", "Safety"}) {
		t.Errorf("Majors = %v", got)
	}

	stored, added := tax.AddSub("Missing supports")
	if !added || stored != "Missing supports" {
		t.Errorf("AddSub = %q, %v", stored, added)
	}
	stored, added = tax.AddSub("  missing SUPPORTS ")
	if added || stored != "Missing supports" {
		t.Errorf("AddSub duplicate = %q, %v", stored, added)
	}
	if _, added := tax.AddSub("   "); added {
		t.Error("blank sub added")
	}
}

func TestAddSub_ConcurrentNoDuplicates(t *testing.T) {
	tax := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tax.AddSub(fmt.Sprintf("Category %d", i%5))
			tax.AddSub("shared")
		}()
	}
	wg.Wait()

	subs := tax.Subs()
	if len(subs) != 6 {
		t.Errorf("got %d subs, want 6: %v", len(subs), subs)
	}
	seen := map[string]bool{}
	for _, s := range subs {
		if seen[s] {
			t.Errorf("duplicate %q", s)
		}
		seen[s] = true
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taxonomy.json")

	empty, err := Load(path)
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if len(empty.Majors()) != 0 || len(empty.Subs()) != 0 {
		t.Error("missing file should load empty")
	}

	tax := New([]string{"Finance", "Безопасность"}, []string{"Budget"})
	tax.AddSub("Fire exits")
	if err := tax.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, _ := os.ReadFile(path)
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("file is not JSON: %v", err)
	}
	if !reflect.DeepEqual(raw["major_categories"], []string{"Finance", "Безопасность"}) ||
		!reflect.DeepEqual(raw["sub_categories"], []string{"Budget", "Fire exits"}) {
		t.Errorf("file contents = %s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Majors(), tax.Majors()) || !reflect.DeepEqual(loaded.Subs(), tax.Subs()) {
		t.Errorf("round trip = %v %v", loaded.Majors(), loaded.Subs())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed file")
	}
}
