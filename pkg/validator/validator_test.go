package validator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
)

var attrs = []hierarchy.Attribute{
	{Name: "DC", Order: 0},
	{Name: "O", Order: 1},
	{Name: "OU", Order: 2},
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const completeFlows = `
flows:
  - id: f1
    attributes:
      src_dc: corp
      src_o: eng
      src_ou: team-a
`

func sourceOnly(opts Options) *Validator {
	opts.Directions = []core.Direction{core.DirectionSource}
	if opts.Hierarchy == nil {
		opts.Hierarchy = attrs
	}
	return New(opts)
}

func TestValidate_SingleFile(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", completeFlows)

	result := sourceOnly(Options{Instances: map[string]string{"corp": "nifi-1"}}).Validate(file)

	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Files) != 1 || result.Flows != 1 {
		t.Errorf("expected 1 file with 1 flow, got %d files, %d flows", len(result.Files), result.Flows)
	}
}

func TestValidate_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", completeFlows)
	writeFile(t, dir, "b.yml", strings.ReplaceAll(completeFlows, "f1", "f2"))
	writeFile(t, dir, "notes.txt", "ignored")

	result := sourceOnly(Options{}).Validate(dir)

	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Files) != 2 || result.Flows != 2 {
		t.Errorf("expected 2 files with 2 flows, got %v, %d", result.Files, result.Flows)
	}
}

func TestValidate_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", completeFlows)
	writeFile(t, dir, "b.yaml", completeFlows)

	result := sourceOnly(Options{}).Validate(dir)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Error(), `flow "f1" is also defined in`) {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestValidate_MissingValues(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", `
flows:
  - id: f1
    attributes:
      src_dc: corp
`)

	result := sourceOnly(Options{}).Validate(file)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	var ve *ValidationError
	if !errors.As(result.Errors[0], &ve) {
		t.Fatalf("expected ValidationError, got %T", result.Errors[0])
	}
	if ve.Line != 3 {
		t.Errorf("expected line 3, got %d", ve.Line)
	}
	if !strings.Contains(ve.Message, "no source value for O, OU") {
		t.Errorf("unexpected message %q", ve.Message)
	}
}

func TestValidate_UnknownInstance(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", completeFlows)

	result := sourceOnly(Options{Instances: map[string]string{"other": "nifi-2"}}).Validate(file)

	if result.IsValid() {
		t.Fatal("expected an error for the unmapped instance")
	}
	if !strings.Contains(result.Errors[0].Error(), `no instance configured for source value "corp"`) {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestValidate_ParseError(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", "flows: [")

	result := sourceOnly(Options{}).Validate(file)

	if result.IsValid() {
		t.Fatal("expected parse error")
	}
	var pe *flow.ParseError
	if !errors.As(result.Errors[0], &pe) {
		t.Errorf("expected ParseError, got %T", result.Errors[0])
	}
	if len(result.Files) != 0 {
		t.Errorf("unparsed files must not be listed, got %v", result.Files)
	}
}

func TestValidate_NonExistentPath(t *testing.T) {
	result := sourceOnly(Options{}).Validate("/nonexistent/path/flows.yaml")

	if result.IsValid() {
		t.Error("expected error for nonexistent path")
	}
	if !strings.Contains(result.Errors[0].Error(), "cannot access") {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestValidate_InvalidHierarchy(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", completeFlows)

	gapped := []hierarchy.Attribute{{Name: "DC", Order: 0}, {Name: "OU", Order: 2}}
	result := sourceOnly(Options{Hierarchy: gapped}).Validate(file)

	if len(result.Errors) != 1 {
		t.Fatalf("expected only the hierarchy error, got %v", result.Errors)
	}
	if !errors.Is(result.Errors[0], core.ErrInvalidHierarchy) {
		t.Errorf("expected ErrInvalidHierarchy in chain, got %v", result.Errors[0])
	}
}

func TestValidate_InvalidTemplate(t *testing.T) {
	file := writeFile(t, t.TempDir(), "flows.yaml", completeFlows)

	result := sourceOnly(Options{Template: "{4_hierarchy_value}-{nope}"}).Validate(file)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.HasPrefix(result.Errors[0].Error(), "naming.template: ") {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}

func TestValidateSet_BothDirections(t *testing.T) {
	set := flow.NewSet([]flow.Flow{{
		ID: "f1",
		Attributes: map[string]string{
			"src_dc": "corp", "src_o": "eng", "src_ou": "team-a",
		},
	}})

	result := New(Options{Hierarchy: attrs}).ValidateSet(set)

	if len(result.Errors) != 1 {
		t.Fatalf("expected destination error only, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Error(), "no destination value for DC, O, OU") {
		t.Errorf("unexpected error: %v", result.Errors[0])
	}
}
