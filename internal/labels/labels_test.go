package labels

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLineStripsIndexPrefix(t *testing.T) {
	label := ParseLine("042 golden_retriever")

	if label.Raw() != "golden_retriever" {
		t.Fatalf("unexpected raw label: %q", label.Raw())
	}
	if label.Display() != "golden retriever" {
		t.Fatalf("unexpected display label: %q", label.Display())
	}
	if got := label.ReferenceURL(""); got != "https://en.wikipedia.org/wiki/golden_retriever" {
		t.Fatalf("unexpected reference url: %q", got)
	}
}

func TestParseLineWithoutSpace(t *testing.T) {
	if got := ParseLine("pug"); got != "pug" {
		t.Fatalf("expected whole line as label, got %q", got)
	}
}

func TestParseLineKeepsTextAfterFirstSpaceOnly(t *testing.T) {
	if got := ParseLine("7 a b\r"); got != "a b" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestParsePreservesOrder(t *testing.T) {
	list, err := Parse(strings.NewReader("0 a\n1 b\n2 c\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := List{"a", "b", "c"}
	if len(list) != len(want) {
		t.Fatalf("expected %d labels, got %d", len(want), len(list))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("label %d: expected %q, got %q", i, want[i], list[i])
		}
	}
}

func TestListAtOutOfRange(t *testing.T) {
	list := List{"a"}
	if _, err := list.At(1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := list.At(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestReferenceURLCustomTemplate(t *testing.T) {
	got := Label("shiba_inu").ReferenceURL("https://dogs.example/%s")
	if got != "https://dogs.example/shiba_inu" {
		t.Fatalf("unexpected url: %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("0 beagle\n1 border_collie\n"), 0o600); err != nil {
		t.Fatalf("failed to write labels: %v", err)
	}

	list, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[1].Display() != "border collie" {
		t.Fatalf("unexpected labels: %v", list)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("failed to write labels: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for empty file")
	}
}
