package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadChecklist(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{
			name:  "single column",
			input: "criterion\nHas a safety plan\nLists contractors\n",
			want:  []string{"Has a safety plan", "Lists contractors"},
		},
		{
			name:  "header case and spacing, other columns, blanks dropped",
			input: "\ufeffid, Criterion ,weight\n1,\"Budget, approved\",2\n2,  ,1\n3,Schedule exists\n",
			want:  []string{"Budget, approved", "Schedule exists"},
		},
		{
			name:    "missing column",
			input:   "question\nsomething\n",
			wantErr: ErrNoCriterionColumn,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: ErrNoCriterionColumn,
		},
		{
			name:  "header only",
			input: "criterion\n",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadChecklist(strings.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadChecklistFile_WrapsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checklist_alpha.csv")
	os.WriteFile(path, []byte("name\nx\n"), 0o644)

	_, err := ReadChecklistFile(path)
	if !errors.Is(err, ErrNoCriterionColumn) {
		t.Fatalf("err = %v, want ErrNoCriterionColumn", err)
	}
	if !strings.Contains(err.Error(), "checklist_alpha.csv") {
		t.Errorf("error %q does not name the file", err)
	}
}
