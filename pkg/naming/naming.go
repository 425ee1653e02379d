// Package naming renders target names from templates and hierarchy values.
//
// Supported placeholders:
//
//	{first_hierarchy_value}  value of the first (root) level
//	{last_hierarchy_value}   value of the last (leaf) level
//	{N_hierarchy_value}      value of level N, 1-based
//
// Missing values render as empty strings.
package naming

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
)

// DefaultTemplate names the target after the leaf hierarchy value.
const DefaultTemplate = "{last_hierarchy_value}"

const (
	firstPlaceholder = "{first_hierarchy_value}"
	lastPlaceholder  = "{last_hierarchy_value}"
)

var (
	placeholder    = regexp.MustCompile(`\{(first|last|\d+)_hierarchy_value\}`)
	anyPlaceholder = regexp.MustCompile(`\{[^{}]*\}`)
)

// Generate renders template with the flow's hierarchy values for dir. An
// empty template means DefaultTemplate.
func Generate(f flow.Flow, dir core.Direction, h hierarchy.Hierarchy, template string) string {
	return Render(template, h.Values(f, dir))
}

// Render substitutes placeholders in template with values in one pass over
// the template. Substituted values are never scanned again.
func Render(template string, values []string) string {
	if template == "" {
		template = DefaultTemplate
	}

	value := func(i int) string {
		if i < 0 || i >= len(values) {
			return ""
		}
		return values[i]
	}

	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		switch ref := placeholder.FindStringSubmatch(m)[1]; ref {
		case "first":
			return value(0)
		case "last":
			return value(len(values) - 1)
		default:
			n, err := strconv.Atoi(ref)
			if err != nil {
				return ""
			}
			return value(n - 1)
		}
	})
}

// Placeholders returns the placeholders used in template, in order of first use.
func Placeholders(template string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range anyPlaceholder.FindAllString(template, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// ValidateTemplate checks that every placeholder is known and that indexed
// placeholders fall inside a hierarchy of the given length.
func ValidateTemplate(template string, levels int) error {
	for _, p := range Placeholders(template) {
		m := placeholder.FindStringSubmatch(p)
		if m == nil || m[0] != p {
			return fmt.Errorf("unknown placeholder %s", p)
		}
		if p == firstPlaceholder || p == lastPlaceholder {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > levels {
			return fmt.Errorf("placeholder %s is outside the %d-level hierarchy", p, levels)
		}
	}
	return nil
}
