package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowdeploy/pkg/config"
	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/driver/mock"
	"github.com/devicelab-dev/flowdeploy/pkg/driver/rest"
	"github.com/devicelab-dev/flowdeploy/pkg/flow"
	"github.com/devicelab-dev/flowdeploy/pkg/hierarchy"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
	"github.com/devicelab-dev/flowdeploy/pkg/pathcache"
	"github.com/devicelab-dev/flowdeploy/pkg/planner"
	"github.com/devicelab-dev/flowdeploy/pkg/resolver"
)

// mockBaseFolder is the base path folder created in --mock mode.
const mockBaseFolder = "Deployments"

// workspace is everything a command needs, loaded from config and flags.
type workspace struct {
	cfg       *config.Config
	hierarchy hierarchy.Hierarchy
	dirs      []core.Direction
	flows     *flow.Set
	flowsPath string
	api       core.API
	server    string
	cache     *pathcache.Cache
	planner   *planner.Planner
}

// loadConfig reads --config, or config.yaml/config.yml in the working
// directory. The returned dir is where relative paths in the config resolve.
func loadConfig(c *cli.Context) (cfg *config.Config, dir string, err error) {
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, filepath.Dir(path), nil
	}
	cfg, err = config.LoadFromDir(".")
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, ".", nil
}

// loadWorkspace loads config and flows and connects to the external system.
func loadWorkspace(c *cli.Context) (*workspace, error) {
	if c.Bool("verbose") {
		_ = logger.SetLevel("debug")
	}

	cfg, cfgDir, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	h, _ := cfg.HierarchyModel()
	dirs, _ := cfg.ParsedDirections()
	strictness, err := resolver.ParseStrictness(cfg.Matching.Strictness)
	if err != nil {
		return nil, err
	}

	ws := &workspace{cfg: cfg, hierarchy: h, dirs: dirs}

	if ws.flowsPath, err = flowsPath(c, cfg, cfgDir); err != nil {
		return nil, err
	}
	if ws.flows, err = loadFlows(ws.flowsPath); err != nil {
		return nil, err
	}

	if c.Bool("mock") {
		d := mock.New(mock.Config{})
		seedMock(d, cfg, h, dirs, ws.flows)
		ws.api = d
		ws.server = "mock"
	} else {
		server := c.String("server")
		if server == "" {
			server = cfg.Server.URL
		}
		if server == "" {
			return nil, fmt.Errorf("no server configured (set server.url, pass --server, or use --mock)")
		}
		client := rest.NewClient(server, cfg.Server.Timeout)
		token := c.String("token")
		if token == "" {
			token = cfg.Server.Token
		}
		client.SetToken(token)
		ws.api = client
		ws.server = client.ServerURL()
	}

	ws.cache = pathcache.New(ws.api, pathcache.RetryConfig{
		MaxAttempts:  cfg.Fetch.MaxAttempts,
		InitialDelay: cfg.Fetch.InitialDelay,
		MaxDelay:     cfg.Fetch.MaxDelay,
	})
	ws.planner = planner.New(ws.cache, planner.Options{
		Hierarchy: h,
		Instances: cfg.Instances,
		Template:  cfg.Naming.Template,
		Resolver:  resolver.New(resolver.WithStrictness(strictness)),
	})
	logger.Info("workspace: %d flows from %s, server %s", len(ws.flows.Flows), ws.flowsPath, ws.server)
	return ws, nil
}

// openCommandLog logs to <home>/logs/flowdeploy.log for commands that
// write no report directory. The returned func closes the log.
func openCommandLog() func() {
	dir := config.GetLogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return func() {}
	}
	if err := logger.Init(filepath.Join(dir, "flowdeploy.log")); err != nil {
		return func() {}
	}
	return logger.Close
}

// flowsPath returns --flows, or the configured flow path relative to the
// config directory.
func flowsPath(c *cli.Context, cfg *config.Config, cfgDir string) (string, error) {
	if path := c.String("flows"); path != "" {
		return path, nil
	}
	if cfg.Flows == "" {
		return "", fmt.Errorf("no flows configured (set flows in config.yaml or pass --flows)")
	}
	if filepath.IsAbs(cfg.Flows) {
		return cfg.Flows, nil
	}
	return filepath.Join(cfgDir, cfg.Flows), nil
}

// loadFlows parses a flow set file, or every .yaml/.yml file below a directory.
func loadFlows(path string) (*flow.Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access flows: %w", err)
	}
	if !info.IsDir() {
		return flow.ParseFile(path)
	}

	var all []flow.Flow
	seen := make(map[string]string)
	err = filepath.WalkDir(path, func(file string, e os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		set, err := flow.ParseFile(file)
		if err != nil {
			return err
		}
		for _, f := range set.Flows {
			if prev, dup := seen[f.ID]; dup {
				return fmt.Errorf("%s: flow %q is also defined in %s", file, f.ID, prev)
			}
			seen[f.ID] = file
			all = append(all, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no flows found in %s", path)
	}
	return flow.NewSet(all), nil
}

// seedMock builds a tree per configured instance with a shared base folder
// and the interior folders every flow expects below it.
func seedMock(d *mock.Driver, cfg *config.Config, h hierarchy.Hierarchy, dirs []core.Direction, flows *flow.Set) {
	keys := make([]string, 0, len(cfg.Instances))
	for k := range cfg.Instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	created := make(map[string]bool)
	for _, key := range keys {
		id := cfg.Instances[key]
		if id == "" || created[id] {
			continue
		}
		created[id] = true
		d.AddInstance(id, "Root")
		d.AddPath(id, id+"-base", mockBaseFolder)
		d.SetBasePath(id, core.DirectionSource, id+"-base")
		d.SetBasePath(id, core.DirectionDestination, id+"-base")
	}

	folders := make(map[string]bool)
	n := 0
	for _, f := range flows.Flows {
		for _, dir := range dirs {
			id, ok := cfg.Instances[h.RootValue(f, dir)]
			if !ok || !created[id] {
				continue
			}
			names := []string{mockBaseFolder}
			for _, v := range h.Interior(f, dir) {
				if v == "" {
					break
				}
				names = append(names, v)
				key := id + "/" + strings.Join(names, "/")
				if folders[key] {
					continue
				}
				folders[key] = true
				n++
				d.AddPath(id, fmt.Sprintf("%s-%d", id, n), names...)
			}
		}
	}
}
