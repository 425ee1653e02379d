// Package mock provides an in-memory external orchestration system for
// testing and dry runs without a real server.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

// Config configures mock driver behavior.
type Config struct {
	// FailDeploy makes deploy calls for these flow ids fail with the message.
	FailDeploy map[string]string
	// FailResolve makes conflict resolution for these flow ids fail.
	FailResolve map[string]string
	// FailFetch makes the first N target path fetches of each instance fail.
	FailFetch int
	// CallDelay adds artificial latency to every call
	CallDelay time.Duration
}

// Call records one API call, in the order it was received.
type Call struct {
	Method     string
	InstanceID string
	FlowID     string
	Action     string
}

// target is the per-target state the mock tracks beyond the path snapshot.
type target struct {
	versioned bool
	running   int
	stopped   int
	version   int
}

type instance struct {
	rootID   string
	paths    []core.TargetPath
	settings core.DeploymentSettings
	targets  map[string]*target
	fetches  int
}

// Driver is a mock implementation of core.API.
type Driver struct {
	Config Config

	mu          sync.Mutex
	instances   map[string]*instance
	calls       []Call
	inFlight    int
	maxInFlight int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	return &Driver{
		Config:    cfg,
		instances: make(map[string]*instance),
	}
}

// AddInstance registers an instance whose tree has a single root folder.
func (d *Driver) AddInstance(instanceID, rootName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rootID := instanceID + "-root"
	d.instances[instanceID] = &instance{
		rootID:  rootID,
		paths:   []core.TargetPath{core.NewTargetPath(rootID, rootName)},
		targets: make(map[string]*target),
	}
}

// AddPath adds a folder below the root. rootFirst excludes the root name.
func (d *Driver) AddPath(instanceID, id string, rootFirst ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst := d.mustInstance(instanceID)
	root := inst.paths[0].RootFirst()
	inst.paths = append(inst.paths, core.NewTargetPath(id, append(root, rootFirst...)...))
}

// SetVersioned marks an existing target as version controlled with the given
// processor counts.
func (d *Driver) SetVersioned(instanceID, id string, running, stopped int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst := d.mustInstance(instanceID)
	inst.targets[id] = &target{versioned: true, running: running, stopped: stopped, version: 1}
}

// SetBasePath configures the base path for a direction. The id must exist.
func (d *Driver) SetBasePath(instanceID string, dir core.Direction, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst := d.mustInstance(instanceID)
	var bp *core.BasePath
	for _, p := range inst.paths {
		if p.ID == id {
			bp = &core.BasePath{ID: id, Path: "/" + strings.Join(p.BelowRoot(), "/")}
		}
	}
	if bp == nil {
		panic(fmt.Sprintf("mock: unknown base path %s", id))
	}
	if dir == core.DirectionSource {
		inst.settings.SourcePath = bp
	} else {
		inst.settings.DestPath = bp
	}
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (d *Driver) MaxInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

// PathByName returns the first path whose root-first names end with names.
func (d *Driver) PathByName(instanceID string, names ...string) (core.TargetPath, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst := d.mustInstance(instanceID)
	for _, p := range inst.paths {
		rf := p.RootFirst()
		if len(rf) >= len(names) && equal(rf[len(rf)-len(names):], names) {
			return p, true
		}
	}
	return core.TargetPath{}, false
}

// TargetPaths returns the instance tree snapshot.
func (d *Driver) TargetPaths(ctx context.Context, instanceID string) ([]core.TargetPath, error) {
	done, err := d.begin(ctx, Call{Method: "TargetPaths", InstanceID: instanceID})
	if err != nil {
		return nil, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()

	inst, ok := d.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	inst.fetches++
	if inst.fetches <= d.Config.FailFetch {
		return nil, fmt.Errorf("connection reset fetching %s (attempt %d)", instanceID, inst.fetches)
	}

	out := make([]core.TargetPath, len(inst.paths))
	copy(out, inst.paths)
	return out, nil
}

// DeploymentSettings returns the configured base paths.
func (d *Driver) DeploymentSettings(ctx context.Context, instanceID string) (*core.DeploymentSettings, error) {
	done, err := d.begin(ctx, Call{Method: "DeploymentSettings", InstanceID: instanceID})
	if err != nil {
		return nil, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()

	inst, ok := d.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	s := inst.settings
	return &s, nil
}

// Deploy creates a target or reports a conflict when the name is taken.
func (d *Driver) Deploy(ctx context.Context, instanceID string, req core.DeployRequest) (*core.DeployResponse, error) {
	done, err := d.begin(ctx, Call{Method: "Deploy", InstanceID: instanceID, FlowID: req.FlowID})
	if err != nil {
		return nil, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()

	if msg, ok := d.Config.FailDeploy[req.FlowID]; ok {
		return nil, fmt.Errorf("%s", msg)
	}

	inst, ok := d.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	parent, err := inst.parent(req.TargetParentID)
	if err != nil {
		return nil, err
	}

	if existing, ok := inst.child(parent, req.NewName); ok {
		t := inst.targets[existing.ID]
		info := core.ConflictInfo{
			Message:  fmt.Sprintf("a target named %q already exists in %s", req.NewName, parent.String()),
			Existing: core.ExistingTarget{ID: existing.ID, Name: existing.Name()},
		}
		if t != nil {
			info.Existing.RunningCount = t.running
			info.Existing.StoppedCount = t.stopped
			info.Existing.HasVersionControl = t.versioned
		}
		return &core.DeployResponse{Conflict: &info}, nil
	}

	created := inst.create(parent, req.NewName)
	return &core.DeployResponse{Success: true, TargetID: created.ID, TargetName: created.Name()}, nil
}

// ResolveConflict applies a resolution action.
func (d *Driver) ResolveConflict(ctx context.Context, instanceID string, req core.ResolveRequest) (*core.ResolveResponse, error) {
	done, err := d.begin(ctx, Call{Method: "ResolveConflict", InstanceID: instanceID, FlowID: req.FlowID, Action: req.Action})
	if err != nil {
		return nil, err
	}
	defer done()

	d.mu.Lock()
	defer d.mu.Unlock()

	if msg, ok := d.Config.FailResolve[req.FlowID]; ok {
		return &core.ResolveResponse{Error: msg}, nil
	}

	inst, ok := d.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	parent, err := inst.parent(req.TargetParentID)
	if err != nil {
		return nil, err
	}
	existing, ok := inst.lookup(req.TargetID)
	if !ok {
		return &core.ResolveResponse{Error: fmt.Sprintf("target %s not found", req.TargetID)}, nil
	}

	switch req.Action {
	case "deploy_anyway":
		name := req.NewName
		for n := 2; ; n++ {
			if _, taken := inst.child(parent, name); !taken {
				break
			}
			name = fmt.Sprintf("%s (%d)", req.NewName, n)
		}
		created := inst.create(parent, name)
		return &core.ResolveResponse{Success: true, TargetID: created.ID, TargetName: created.Name()}, nil

	case "delete_and_deploy":
		inst.remove(existing)
		created := inst.create(parent, req.NewName)
		return &core.ResolveResponse{Success: true, TargetID: created.ID, TargetName: created.Name()}, nil

	case "update_version":
		t := inst.targets[existing.ID]
		if t == nil || !t.versioned {
			return &core.ResolveResponse{Error: fmt.Sprintf("%s is not under version control", existing.Name())}, nil
		}
		t.version++
		return &core.ResolveResponse{Success: true, TargetID: existing.ID, TargetName: existing.Name()}, nil

	default:
		return &core.ResolveResponse{Error: fmt.Sprintf("unknown action %q", req.Action)}, nil
	}
}

// begin records the call, applies latency and tracks concurrency.
func (d *Driver) begin(ctx context.Context, c Call) (func(), error) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.mu.Unlock()

	done := func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}

	if d.Config.CallDelay > 0 {
		select {
		case <-time.After(d.Config.CallDelay):
		case <-ctx.Done():
			done()
			return nil, ctx.Err()
		}
	}
	return done, nil
}

func (d *Driver) mustInstance(id string) *instance {
	inst, ok := d.instances[id]
	if !ok {
		panic(fmt.Sprintf("mock: unknown instance %s", id))
	}
	return inst
}

func (i *instance) lookup(id string) (core.TargetPath, bool) {
	for _, p := range i.paths {
		if p.ID == id {
			return p, true
		}
	}
	return core.TargetPath{}, false
}

func (i *instance) parent(id *string) (core.TargetPath, error) {
	if id == nil {
		p, _ := i.lookup(i.rootID)
		return p, nil
	}
	p, ok := i.lookup(*id)
	if !ok {
		return core.TargetPath{}, fmt.Errorf("parent %s not found", *id)
	}
	return p, nil
}

func (i *instance) child(parent core.TargetPath, name string) (core.TargetPath, bool) {
	want := append(parent.RootFirst(), name)
	for _, p := range i.paths {
		if equal(p.RootFirst(), want) {
			return p, true
		}
	}
	return core.TargetPath{}, false
}

func (i *instance) create(parent core.TargetPath, name string) core.TargetPath {
	p := core.NewTargetPath(uuid.NewString(), append(parent.RootFirst(), name)...)
	i.paths = append(i.paths, p)
	return p
}

// remove deletes p and every path below it.
func (i *instance) remove(p core.TargetPath) {
	prefix := p.RootFirst()
	kept := i.paths[:0]
	for _, q := range i.paths {
		rf := q.RootFirst()
		if len(rf) >= len(prefix) && equal(rf[:len(prefix)], prefix) {
			delete(i.targets, q.ID)
			continue
		}
		kept = append(kept, q)
	}
	i.paths = kept
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
