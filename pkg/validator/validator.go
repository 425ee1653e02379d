// Package validator checks flow files against the workspace configuration
// before any configs are planned. It parses all files upfront and reports
// every problem it finds rather than stopping at the first.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
	"github.com/devicelab-dev/flowdeploy/pkg/naming"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int
	Message string
	Err     error // Underlying error, if any
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of flow files that parsed, in scan order.
	Files []string
	// Flows is the number of flows found across all files.
	Flows int
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *Result) add(file string, line int, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &ValidationError{File: file, Line: line, Message: fmt.Sprintf(format, args...)})
}

// Options describes the workspace the flows are validated against.
type Options struct {
	Hierarchy  []hierarchy.Attribute
	Template   string
	Directions []core.Direction
	// Instances maps root hierarchy values to instance ids. nil skips the
	// instance check.
	Instances map[string]string
}

// Validator validates flow files.
type Validator struct {
	opts Options
}

// New creates a new Validator.
func New(opts Options) *Validator {
	if len(opts.Directions) == 0 {
		opts.Directions = []core.Direction{core.DirectionSource, core.DirectionDestination}
	}
	return &Validator{opts: opts}
}

// Validate validates a file or directory.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	h, ok := v.checkConfig(result)

	info, err := os.Stat(path)
	if err != nil {
		result.add(path, 0, "cannot access: %v", err)
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectFlowFiles(path)
		if err != nil {
			result.add(path, 0, "failed to scan directory: %v", err)
			return result
		}
	} else {
		files = []string{path}
	}

	seen := make(map[string]string)
	for _, file := range files {
		set, err := flow.ParseFile(file)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Files = append(result.Files, file)
		result.Flows += len(set.Flows)

		for _, f := range set.Flows {
			if prev, dup := seen[f.ID]; dup {
				result.add(file, f.Line, "flow %q is also defined in %s", f.ID, prev)
				continue
			}
			seen[f.ID] = file
			if ok {
				v.checkFlow(f, h, result)
			}
		}
	}
	return result
}

// ValidateSet validates already parsed flows.
func (v *Validator) ValidateSet(set *flow.Set) *Result {
	result := &Result{Flows: len(set.Flows)}
	h, ok := v.checkConfig(result)
	if !ok {
		return result
	}
	for _, f := range set.Flows {
		v.checkFlow(f, h, result)
	}
	return result
}

// checkConfig validates the hierarchy and naming template. The flow checks
// need a valid hierarchy, so ok is false when it is not.
func (v *Validator) checkConfig(result *Result) (hierarchy.Hierarchy, bool) {
	h, err := hierarchy.New(v.opts.Hierarchy)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{File: "hierarchy", Message: err.Error(), Err: err})
		return h, false
	}
	if h.Len() == 0 {
		result.add("hierarchy", 0, "no hierarchy attributes configured")
		return h, false
	}

	tmpl := v.opts.Template
	if tmpl == "" {
		tmpl = naming.DefaultTemplate
	}
	if err := naming.ValidateTemplate(tmpl, h.Len()); err != nil {
		result.add("naming.template", 0, "%v", err)
	}
	return h, true
}

func (v *Validator) checkFlow(f flow.Flow, h hierarchy.Hierarchy, result *Result) {
	file := f.SourcePath
	if file == "" {
		file = f.ID
	}

	for _, dir := range v.opts.Directions {
		if missing := h.Missing(f, dir); len(missing) > 0 {
			result.add(file, f.Line, "flow %q has no %s value for %s", f.ID, dir, strings.Join(missing, ", "))
			continue
		}
		if v.opts.Instances == nil {
			continue
		}
		key := h.RootValue(f, dir)
		if !hasInstance(v.opts.Instances, key) {
			result.add(file, f.Line, "flow %q: no instance configured for %s value %q", f.ID, dir, key)
		}
	}
}

func hasInstance(instances map[string]string, key string) bool {
	if id, ok := instances[key]; ok && id != "" {
		return true
	}
	id, ok := instances[strings.ToLower(key)]
	return ok && id != ""
}

// collectFlowFiles finds all .yaml/.yml files in a directory.
func collectFlowFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}
