// Package flow handles parsing and representation of flow definitions.
package flow

import "strings"

// Flow is one unit of work to be deployed. Attributes hold the hierarchy
// values keyed by direction prefix and lower-cased attribute name, e.g.
// "src_dc" or "dest_ou".
type Flow struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Template   string            `yaml:"template"` // Template source passed to deploy calls
	Attributes map[string]string `yaml:"attributes"`

	SourcePath string `yaml:"-"` // File the flow was loaded from
	Line       int    `yaml:"-"` // Line of the flow entry in SourcePath
}

// Value returns the attribute value for key (case-insensitive).
func (f Flow) Value(key string) string {
	return f.Attributes[strings.ToLower(key)]
}

// DisplayName returns Name, falling back to ID.
func (f Flow) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// Set is an ordered collection of flows loaded for one session.
type Set struct {
	Flows []Flow
	byID  map[string]int
}

// NewSet indexes flows by id.
func NewSet(flows []Flow) *Set {
	s := &Set{Flows: flows, byID: make(map[string]int, len(flows))}
	for i, f := range flows {
		if _, exists := s.byID[f.ID]; !exists {
			s.byID[f.ID] = i
		}
	}
	return s
}

// Get returns the flow with the given id.
func (s *Set) Get(id string) (Flow, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Flow{}, false
	}
	return s.Flows[i], true
}

// Select returns the flows for ids in the order given. Unknown ids are skipped.
func (s *Set) Select(ids []string) []Flow {
	var out []Flow
	for _, id := range ids {
		if f, ok := s.Get(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// IDs returns all flow ids in file order.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.Flows))
	for i, f := range s.Flows {
		ids[i] = f.ID
	}
	return ids
}
