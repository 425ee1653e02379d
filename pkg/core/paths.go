package core

import "strings"

// Segment is one folder name in a target path.
type Segment struct {
	Name string `json:"name"`
}

// TargetPath is a snapshot of one node in the external folder tree.
//
// Segments are stored as delivered by the external system: leaf first,
// walking up to the root. Use RootFirst for matching and display.
type TargetPath struct {
	ID       string    `json:"id"`
	Segments []Segment `json:"segments"`
}

// RootFirst returns the segment names ordered root to leaf.
func (p TargetPath) RootFirst() []string {
	names := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		names[len(p.Segments)-1-i] = seg.Name
	}
	return names
}

// BelowRoot returns the root-first names without the synthetic root segment.
func (p TargetPath) BelowRoot() []string {
	names := p.RootFirst()
	if len(names) == 0 {
		return names
	}
	return names[1:]
}

// Name returns the leaf segment name.
func (p TargetPath) Name() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0].Name
}

// String renders the path as "/Root/a/b".
func (p TargetPath) String() string {
	return "/" + strings.Join(p.RootFirst(), "/")
}

// NewTargetPath builds a TargetPath from root-first names.
func NewTargetPath(id string, rootFirst ...string) TargetPath {
	segs := make([]Segment, len(rootFirst))
	for i, name := range rootFirst {
		segs[len(rootFirst)-1-i] = Segment{Name: name}
	}
	return TargetPath{ID: id, Segments: segs}
}

// Tree is the full path snapshot of one instance. Paths keep the order the
// external system returned them in; the id index points into that slice.
type Tree struct {
	InstanceID string
	Paths      []TargetPath
	index      map[string]int
}

// NewTree indexes paths by id. On duplicate ids the first record wins.
func NewTree(instanceID string, paths []TargetPath) *Tree {
	t := &Tree{
		InstanceID: instanceID,
		Paths:      paths,
		index:      make(map[string]int, len(paths)),
	}
	for i, p := range paths {
		if _, exists := t.index[p.ID]; !exists {
			t.index[p.ID] = i
		}
	}
	return t
}

// Len returns the number of paths in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Paths)
}

// Lookup returns the path with the given id.
func (t *Tree) Lookup(id string) (TargetPath, bool) {
	if t == nil {
		return TargetPath{}, false
	}
	i, ok := t.index[id]
	if !ok {
		return TargetPath{}, false
	}
	return t.Paths[i], true
}

// Contains reports whether id is present in the tree.
func (t *Tree) Contains(id string) bool {
	_, ok := t.Lookup(id)
	return ok
}

// BasePath is the administrator-configured starting folder for a direction.
// Path is the display path below the root, e.g. "/To net1".
type BasePath struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Segments returns the display path split into names. The root segment is
// not part of the display path.
func (b BasePath) Segments() []string {
	var names []string
	for _, part := range strings.Split(b.Path, "/") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// DeploymentSettings holds the base paths configured for one instance.
type DeploymentSettings struct {
	SourcePath *BasePath `json:"source_path,omitempty"`
	DestPath   *BasePath `json:"dest_path,omitempty"`
}

// For returns the base path configured for the direction, or nil.
func (s DeploymentSettings) For(dir Direction) *BasePath {
	switch dir {
	case DirectionSource:
		return s.SourcePath
	case DirectionDestination:
		return s.DestPath
	default:
		return nil
	}
}

// BaseSettings maps instance ids to their deployment settings.
type BaseSettings map[string]DeploymentSettings

// Lookup returns the base path for an instance and direction.
func (b BaseSettings) Lookup(instanceID string, dir Direction) (*BasePath, bool) {
	s, ok := b[instanceID]
	if !ok {
		return nil, false
	}
	bp := s.For(dir)
	if bp == nil || bp.ID == "" {
		return nil, false
	}
	return bp, true
}
