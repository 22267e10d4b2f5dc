package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:8b"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestHasModel_TagSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:8b", "bge-m3:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "bge-m3") {
		t.Error("HasModel(bge-m3) = false, want true")
	}
	if c.HasModel(context.Background(), "llama3") {
		t.Error("HasModel(llama3) = true, want false")
	}
}

func TestChat_SendsOptionsAndSchema(t *testing.T) {
	var captured chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(chatResponse{
			Message: Message{Role: "assistant", Content: `{"status":"confirmed","answer":"yes"}`},
		})
	}))
	defer srv.Close()

	c := New(srv.URL).WithOptions(Options{Temperature: 0.2, TopP: 0.9, RepeatPenalty: 1.05})
	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"status": {Type: "string", Enum: []string{"confirmed", "not_found"}},
			"answer": {Type: "string"},
		},
		Required: []string{"status", "answer"},
	}

	result, err := c.Chat(context.Background(), "qwen3:8b", []Message{
		{Role: "user", Content: "verify"},
	}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(result, "confirmed") {
		t.Errorf("result = %q", result)
	}

	if captured.Stream {
		t.Error("stream = true, want false")
	}
	if captured.Options == nil || captured.Options.Temperature != 0.2 || captured.Options.RepeatPenalty != 1.05 {
		t.Errorf("options = %+v", captured.Options)
	}
	formatMap, ok := captured.Format.(map[string]any)
	if !ok {
		t.Fatalf("format = %T, want schema object", captured.Format)
	}
	props := formatMap["properties"].(map[string]any)
	status := props["status"].(map[string]any)
	if enum, _ := status["enum"].([]any); len(enum) != 2 {
		t.Errorf("status enum = %v, want 2 values", status["enum"])
	}
}

func TestChat_NoSchemaOmitsFormat(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "a\nb\nc"}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Chat(context.Background(), "qwen3:8b", []Message{{Role: "user", Content: "x"}}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := raw["format"]; ok {
		t.Error("format present, want omitted")
	}
	if _, ok := raw["options"]; ok {
		t.Error("options present without WithOptions")
	}
}

func TestChat_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "missing", []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error = %q, want body excerpt", err)
	}
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		out := embedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := New(srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), "bge-m3", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Errorf("vecs[2][0] = %v, want 2 (input order kept)", vecs[2][0])
	}

	vec, err := c.Embed(context.Background(), "bge-m3", "single")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("got %d floats, want 2", len(vec))
	}
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).EmbedBatch(context.Background(), "bge-m3", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for mismatched embedding count")
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		var reqBody pullRequest
		json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody.Name != "qwen3:8b" {
			t.Errorf("pull model = %q, want %q", reqBody.Name, "qwen3:8b")
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var progressCount int
	err := New(srv.URL).PullModel(context.Background(), "qwen3:8b", func(p PullProgress) {
		progressCount++
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if progressCount != 2 {
		t.Errorf("received %d progress updates, want 2", progressCount)
	}
}
