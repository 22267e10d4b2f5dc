package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/sverka/internal/metrics"
	"github.com/kalambet/sverka/internal/pipeline"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/taxonomy"
)

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{Token: "secret"})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 without a token", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Verdict("confirmed")
	srv := newTestServer(t, Deps{Metrics: m})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "sverka_verdicts_total") {
		t.Errorf("metrics output missing sverka_verdicts_total:\n%s", body)
	}
}

func TestChecklist_ReturnsOrderedResults(t *testing.T) {
	srv := newTestServer(t, Deps{Checklist: confirmAll()})

	resp, body := post(t, srv.URL+"/checklist", "",
		`{"project":"Alpha","docs_dir":"/docs","criteria":["Pressure is 25 MPa"," ","Fire exits marked"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var out struct {
		RunID   string          `json:"run_id"`
		Project string          `json:"project"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RunID != "run-1" || out.Project != "Alpha" {
		t.Errorf("run_id/project = %q/%q", out.RunID, out.Project)
	}
	first := strings.Index(string(out.Results), "Pressure is 25 MPa")
	second := strings.Index(string(out.Results), "Fire exits marked")
	if first < 0 || second < 0 || first > second {
		t.Errorf("results not in checklist order: %s", out.Results)
	}
	if !strings.Contains(string(out.Results), `"status":"confirmed"`) {
		t.Errorf("results = %s", out.Results)
	}
}

func TestChecklist_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		want   int
	}{
		{"bad json", `{"project":`, nil, http.StatusBadRequest},
		{"missing project", `{"docs_dir":"/d","criteria":["x"]}`, nil, http.StatusBadRequest},
		{"no criteria", `{"project":"A","docs_dir":"/d","criteria":[]}`, nil, http.StatusUnprocessableEntity},
		{"no documents", `{"project":"A","docs_dir":"/d","criteria":["x"]}`, fmt.Errorf("project %q: %w", "A", retrieval.ErrNoDocuments), http.StatusUnprocessableEntity},
		{"internal", `{"project":"A","docs_dir":"/d","criteria":["x"]}`, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := confirmAll()
			if tt.runErr != nil {
				runner.runFn = func(context.Context, pipeline.Project) (*pipeline.VerificationReport, error) {
					return nil, tt.runErr
				}
			}
			srv := newTestServer(t, Deps{Checklist: runner})
			resp, body := post(t, srv.URL+"/checklist", "", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
			if !strings.Contains(string(body), `"error"`) {
				t.Errorf("body = %s, want error envelope", body)
			}
		})
	}
}

func TestAuth_RequiredWhenTokenSet(t *testing.T) {
	srv := newTestServer(t, Deps{Remarks: fixedRemarks(), Token: "secret"})

	resp, _ := post(t, srv.URL+"/classify", "", `{"text":"no exit sign"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", resp.StatusCode)
	}
	resp, _ = post(t, srv.URL+"/classify", "wrong", `{"text":"no exit sign"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp.StatusCode)
	}
	resp, body := post(t, srv.URL+"/classify", "secret", `{"text":"no exit sign"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("right token: status = %d: %s", resp.StatusCode, body)
	}
}

func TestClassify(t *testing.T) {
	var got string
	rm := fixedRemarks()
	rm.classifyFn = func(_ context.Context, text string) (taxonomy.Assignment, error) {
		got = text
		return taxonomy.Assignment{Major: "Safety", Sub: "Fire exits"}, nil
	}
	srv := newTestServer(t, Deps{Remarks: rm})

	resp, body := post(t, srv.URL+"/classify", "", `{"text":"no exit sign"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out classifyResponse
	json.Unmarshal(body, &out)
	if out.Category != "Safety / Fire exits" || got != "no exit sign" {
		t.Errorf("out = %+v, classified %q", out, got)
	}

	resp, _ = post(t, srv.URL+"/classify", "", `{"text":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank text: status = %d, want 400", resp.StatusCode)
	}
}

func TestRemarks(t *testing.T) {
	var got pipeline.Batch
	rm := fixedRemarks()
	rm.runFn = func(_ context.Context, b pipeline.Batch) (*pipeline.RemarksReport, error) {
		got = b
		return &pipeline.RemarksReport{RunID: "run-2", Classification: []pipeline.CategoryItems{}}, nil
	}
	srv := newTestServer(t, Deps{Remarks: rm})

	resp, body := post(t, srv.URL+"/remarks", "", `{"remarks":{"uncategorized":["a","b"]},"categories":["Safety"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if len(got.Remarks["uncategorized"]) != 2 || len(got.Categories) != 1 {
		t.Errorf("batch = %+v", got)
	}
	if !strings.Contains(string(body), `"run_id":"run-2"`) {
		t.Errorf("body = %s", body)
	}

	resp, _ = post(t, srv.URL+"/remarks", "", `{"remarks":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d, want 400", resp.StatusCode)
	}
}
