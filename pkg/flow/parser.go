package flow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// document is the on-disk layout of a flow set file.
type document struct {
	Flows []yaml.Node `yaml:"flows"`
}

// ParseFile parses a flow set YAML file.
func ParseFile(path string) (*Set, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses flow set YAML content.
//
//	flows:
//	  - id: f1
//	    name: Sensor ingest
//	    template: ingest-v2
//	    attributes:
//	      src_dc: DC1
//	      dest_dc: DC2
func Parse(data []byte, sourcePath string) (*Set, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}
	if len(doc.Flows) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "no flows defined",
		}
	}

	flows := make([]Flow, 0, len(doc.Flows))
	seen := make(map[string]int)
	for i := range doc.Flows {
		node := &doc.Flows[i]
		f, err := parseFlow(node, sourcePath)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[f.ID]; dup {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("duplicate flow id %q (first defined on line %d)", f.ID, prev),
			}
		}
		seen[f.ID] = node.Line
		flows = append(flows, f)
	}

	return NewSet(flows), nil
}

func parseFlow(node *yaml.Node, sourcePath string) (Flow, error) {
	var f Flow
	if err := node.Decode(&f); err != nil {
		return Flow{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("invalid flow: %v", err),
		}
	}
	if f.ID == "" {
		return Flow{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "flow is missing id",
		}
	}

	// Attribute keys are matched case-insensitively
	attrs := make(map[string]string, len(f.Attributes))
	for k, v := range f.Attributes {
		attrs[strings.ToLower(strings.TrimSpace(k))] = v
	}
	f.Attributes = attrs
	f.SourcePath = sourcePath
	f.Line = node.Line
	return f, nil
}
