package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fntelecomllc/rowvalidator/internal/models"
)

func TestReadRowsParsesCSVWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	csv := "id,name,email\n1,Jane Doe,jane@example.test\n2,John Roe,john@example.test\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	rows, err := readRows(path)
	if err != nil {
		t.Fatalf("readRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "1" {
		t.Fatalf("expected row id '1', got %q", rows[0].ID)
	}
	if rows[1].Index != 1 {
		t.Fatalf("expected second row index 1, got %d", rows[1].Index)
	}
	name, ok := rows[0].Get("name")
	if !ok || name != "Jane Doe" {
		t.Fatalf("expected name 'Jane Doe', got %v (ok=%v)", name, ok)
	}
}

func TestReadRowsGeneratesIDWhenColumnMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	csv := "name\nJane Doe\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	rows, err := readRows(path)
	if err != nil {
		t.Fatalf("readRows: %v", err)
	}
	if len(rows) != 1 || rows[0].ID == "" {
		t.Fatalf("expected a generated non-empty id, got %+v", rows)
	}
}

func TestExitCodeMapsExitKinds(t *testing.T) {
	cases := map[models.RunExitKind]int{
		models.ExitCompleted: 0,
		models.ExitEscalated: 2,
		models.ExitCancelled: 130,
	}
	for kind, want := range cases {
		if got := exitCode(kind); got != want {
			t.Errorf("exitCode(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestSplitEndpoints(t *testing.T) {
	got := splitEndpoints("http://a,http://b,,http://c")
	want := []string{"http://a", "http://b", "http://c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
