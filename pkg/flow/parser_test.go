package flow

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse_FlowSet(t *testing.T) {
	yaml := `
flows:
  - id: f1
    name: Sensor ingest
    template: ingest-v2
    attributes:
      SRC_DC: DC1
      src_o: corp
      dest_dc: DC2
  - id: f2
    attributes:
      src_dc: DC1
`
	set, err := Parse([]byte(yaml), "flows.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(set.Flows) != 2 {
		t.Fatalf("expected 2 flows, got %d", len(set.Flows))
	}
	f := set.Flows[0]
	if f.Name != "Sensor ingest" || f.Template != "ingest-v2" {
		t.Errorf("unexpected flow %+v", f)
	}
	if f.Value("src_dc") != "DC1" {
		t.Errorf("expected lower-cased key src_dc, got %v", f.Attributes)
	}
	if f.Value("SRC_O") != "corp" {
		t.Error("Value should be case-insensitive")
	}
	if f.Line != 3 {
		t.Errorf("expected line 3, got %d", f.Line)
	}
	if set.Flows[1].DisplayName() != "f2" {
		t.Errorf("expected display name to fall back to id")
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte("  \n"), "empty.yaml")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 1 {
		t.Errorf("expected line 1, got %d", pe.Line)
	}
}

func TestParse_NoFlows(t *testing.T) {
	_, err := Parse([]byte("other: 1\n"), "x.yaml")
	if err == nil {
		t.Fatal("expected error for file without flows")
	}
}

func TestParse_MissingID(t *testing.T) {
	yaml := `
flows:
  - name: nameless
`
	_, err := Parse([]byte(yaml), "x.yaml")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Error() != "x.yaml:3: flow is missing id" {
		t.Errorf("unexpected message %q", pe.Error())
	}
}

func TestParse_DuplicateID(t *testing.T) {
	yaml := `
flows:
  - id: a
  - id: a
`
	_, err := Parse([]byte(yaml), "x.yaml")
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("flows: [invalid"), "x.yaml")
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.yaml")
	if err := os.WriteFile(path, []byte("flows:\n  - id: only\n"), 0644); err != nil {
		t.Fatal(err)
	}

	set, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Flows[0].SourcePath != path {
		t.Errorf("expected source path %s, got %s", path, set.Flows[0].SourcePath)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSet_Select(t *testing.T) {
	set := NewSet([]Flow{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	got := set.Select([]string{"c", "zzz", "a"})
	var ids []string
	for _, f := range got {
		ids = append(ids, f.ID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "a"}) {
		t.Errorf("Select() = %v", ids)
	}
	if !reflect.DeepEqual(set.IDs(), []string{"a", "b", "c"}) {
		t.Errorf("IDs() = %v", set.IDs())
	}
}
