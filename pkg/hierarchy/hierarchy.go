// Package hierarchy describes the ordered attributes that place a flow in the
// target tree.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
)

// Attribute is one named level. Order 0 is the root-most level (the instance
// level), the highest order is the leaf created at deployment time.
type Attribute struct {
	Name  string `yaml:"name" json:"name"`
	Order int    `yaml:"order" json:"order"`
}

// Hierarchy is an immutable, validated, order-sorted attribute sequence.
type Hierarchy struct {
	attrs []Attribute
}

// New validates attrs and returns them sorted by Order. Orders must be
// contiguous from 0 and names non-empty and unique (case-insensitive).
func New(attrs []Attribute) (Hierarchy, error) {
	sorted := make([]Attribute, len(attrs))
	copy(sorted, attrs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	seen := make(map[string]bool, len(sorted))
	for i, a := range sorted {
		if a.Order != i {
			return Hierarchy{}, core.ErrInvalidHierarchy.WithCause(
				fmt.Errorf("attribute orders must be contiguous from 0, found %d at position %d", a.Order, i))
		}
		name := strings.ToLower(strings.TrimSpace(a.Name))
		if name == "" {
			return Hierarchy{}, core.ErrInvalidHierarchy.WithCause(fmt.Errorf("attribute %d has no name", i))
		}
		if seen[name] {
			return Hierarchy{}, core.ErrInvalidHierarchy.WithCause(fmt.Errorf("duplicate attribute %q", a.Name))
		}
		seen[name] = true
	}
	return Hierarchy{attrs: sorted}, nil
}

// MustNew is New for static hierarchies in tests and examples.
func MustNew(names ...string) Hierarchy {
	attrs := make([]Attribute, len(names))
	for i, n := range names {
		attrs[i] = Attribute{Name: n, Order: i}
	}
	h, err := New(attrs)
	if err != nil {
		panic(err)
	}
	return h
}

// Len returns the number of levels.
func (h Hierarchy) Len() int {
	return len(h.attrs)
}

// Attributes returns a copy of the ordered attributes.
func (h Hierarchy) Attributes() []Attribute {
	out := make([]Attribute, len(h.attrs))
	copy(out, h.attrs)
	return out
}

// At returns the attribute at index i.
func (h Hierarchy) At(i int) (Attribute, bool) {
	if i < 0 || i >= len(h.attrs) {
		return Attribute{}, false
	}
	return h.attrs[i], true
}

// Names returns the attribute names in order.
func (h Hierarchy) Names() []string {
	names := make([]string, len(h.attrs))
	for i, a := range h.attrs {
		names[i] = a.Name
	}
	return names
}

// Key returns the flow attribute key for an attribute and direction.
func Key(dir core.Direction, a Attribute) string {
	return dir.KeyPrefix() + strings.ToLower(a.Name)
}

// Values returns the flow's value for every level, in order. Missing values
// are empty strings so the result always has Len() entries.
func (h Hierarchy) Values(f flow.Flow, dir core.Direction) []string {
	values := make([]string, len(h.attrs))
	for i, a := range h.attrs {
		values[i] = f.Value(Key(dir, a))
	}
	return values
}

// Interior returns the values strictly between the root level and the leaf
// level. Hierarchies with fewer than three levels have none.
func (h Hierarchy) Interior(f flow.Flow, dir core.Direction) []string {
	values := h.Values(f, dir)
	if len(values) < 3 {
		return nil
	}
	return values[1 : len(values)-1]
}

// RootValue returns the root-level value, which names the instance.
func (h Hierarchy) RootValue(f flow.Flow, dir core.Direction) string {
	if len(h.attrs) == 0 {
		return ""
	}
	return f.Value(Key(dir, h.attrs[0]))
}

// Missing returns the attribute names the flow has no value for.
func (h Hierarchy) Missing(f flow.Flow, dir core.Direction) []string {
	var missing []string
	for _, a := range h.attrs {
		if strings.TrimSpace(f.Value(Key(dir, a))) == "" {
			missing = append(missing, a.Name)
		}
	}
	return missing
}
