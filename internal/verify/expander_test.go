package verify

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		resp string
		err  error
		want []string
	}{
		{
			name: "three paraphrases with bullets",
			resp: "- Is there a safety plan?\n* Does a safety plan exist?\n\n1. Has a safety plan been prepared?",
			want: []string{"Safety plan?", "Is there a safety plan?", "Does a safety plan exist?", "Has a safety plan been prepared?"},
		},
		{
			name: "more than three lines truncated",
			resp: "a1\na2\na3\na4\na5",
			want: []string{"Safety plan?", "a1", "a2", "a3"},
		},
		{
			name: "reasoning block dropped",
			resp: "<think>three versions</think>\n\"Quoted version\"",
			want: []string{"Safety plan?", "Quoted version"},
		},
		{
			name: "backend error",
			err:  errors.New("connection refused"),
			want: []string{"Safety plan?"},
		},
		{
			name: "error string payload",
			resp: "Error: model not loaded",
			want: []string{"Safety plan?"},
		},
		{
			name: "error json payload",
			resp: `{"status":"requires_confirmation","answer":"API error: 500"}`,
			want: []string{"Safety plan?"},
		},
		{
			name: "empty response",
			resp: "   ",
			want: []string{"Safety plan?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatter{expandFn: func(string) (string, error) { return tt.resp, tt.err }}
			got := NewExpander(chat, "m", nil).Expand(context.Background(), "Safety plan?")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripBullet(t *testing.T) {
	cases := map[string]string{
		"  - item ":       "item",
		"• item":          "item",
		"12) item":        "item",
		"3. item":         "item",
		"2024 budget":     "2024 budget",
		"3.5 MPa limit":   "3.5 MPa limit",
		"1. 3.5 MPa":      "3.5 MPa",
		"10)item":         "10)item",
		"«кавычки»":       "кавычки",
		"":                "",
	}
	for in, want := range cases {
		if got := stripBullet(in); got != want {
			t.Errorf("stripBullet(%q) = %q, want %q", in, got, want)
		}
	}
}
