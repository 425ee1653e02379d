package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowdeploy/pkg/config"
	"github.com/devicelab-dev/flowdeploy/pkg/conflict"
	"github.com/devicelab-dev/flowdeploy/pkg/core"
	"github.com/devicelab-dev/flowdeploy/pkg/executor"
	"github.com/devicelab-dev/flowdeploy/pkg/logger"
	"github.com/devicelab-dev/flowdeploy/pkg/planner"
	"github.com/devicelab-dev/flowdeploy/pkg/wizard"
)

var deployCommand = &cli.Command{
	Name:      "deploy",
	Usage:     "Plan and deploy flows",
	ArgsUsage: "[flow-id]...",
	Description: `Run the deployment wizard without screens: select flows, configure targets,
deploy them one at a time and show the results.

Without flow ids every flow in the flow set is selected. Configs that get no
target from path matching must be given one with --select or --create-at-base.

Reports are written to the output directory:
  - Default: <home>/reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/

Examples:
  flowdeploy deploy
  flowdeploy deploy f1 f2 --on-conflict deploy_anyway
  flowdeploy deploy --select f3/source=pg-42 --name f3/source=legacy-ingest
  flowdeploy deploy --dry-run`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.BoolFlag{
			Name:  "html",
			Usage: "Also write report.html",
		},
		&cli.StringFlag{
			Name:    "on-conflict",
			Usage:   "Conflict policy: prompt, cancel, deploy_anyway, delete_and_deploy, update_version",
			EnvVars: []string{"FLOWDEPLOY_ON_CONFLICT"},
		},
		&cli.BoolFlag{
			Name:  "create-at-base",
			Usage: "Create targets without a matching folder directly under the base path",
		},
		&cli.StringSliceFlag{
			Name:  "select",
			Usage: "Select a target path for a config (KEY=PATH_ID, key is flow/direction)",
		},
		&cli.StringSliceFlag{
			Name:  "name",
			Usage: "Override a generated name (KEY=NAME)",
		},
		&cli.IntFlag{
			Name:  "retry-failed",
			Usage: "Review and redeploy failed items up to N more times",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Stop after review, deploy nothing",
		},
	},
	Action: runDeploy,
}

// resolveOutputDir determines the output directory based on flags.
// - No output: <base>/<timestamp>/
// - output given: <output>/<timestamp>/
// - output + flatten: <output>/ (error if output not given)
func resolveOutputDir(base, output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = base
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// parseAssignments parses KEY=VALUE pairs.
func parseAssignments(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("--%s: expected KEY=VALUE, got %q", flag, p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// prompterFor builds the conflict prompter for a policy name.
func prompterFor(policy string) (conflict.Prompter, error) {
	if policy == config.PolicyPrompt {
		return &conflict.Terminal{In: os.Stdin, Out: os.Stdout}, nil
	}
	return conflict.ParsePolicy(policy)
}

func runDeploy(c *cli.Context) error {
	ws, err := loadWorkspace(c)
	if err != nil {
		return err
	}

	base := ws.cfg.Report.Output
	if base == "" {
		base = config.GetReportsDir()
	}
	outputDir, err := resolveOutputDir(base, c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := logger.Init(filepath.Join(outputDir, "flowdeploy.log")); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	policy := c.String("on-conflict")
	if policy == "" {
		policy = ws.cfg.Conflict.Policy
	}
	prompter, err := prompterFor(policy)
	if err != nil {
		return err
	}
	selections, err := parseAssignments("select", c.StringSlice("select"))
	if err != nil {
		return err
	}
	names, err := parseAssignments("name", c.StringSlice("name"))
	if err != nil {
		return err
	}

	if c.Bool("create-at-base") {
		ws.planner = planner.New(ws.cache, planner.Options{
			Hierarchy:    ws.hierarchy,
			Instances:    ws.cfg.Instances,
			Template:     ws.cfg.Naming.Template,
			Resolver:     ws.planner.Resolver(),
			CreateAtBase: true,
		})
	}

	fmt.Printf("\n%s\n", paint(titleStyle, "flowdeploy"))
	fmt.Printf("  %s %s\n", paint(dimStyle, "Server:"), ws.server)
	fmt.Printf("  %s %s\n", paint(dimStyle, "Output:"), outputDir)

	session := wizard.NewSession(wizard.SessionConfig{
		Flows:      ws.flows,
		Planner:    ws.planner,
		API:        ws.api,
		Directions: ws.dirs,
		Runner: executor.RunnerConfig{
			OutputDir:      outputDir,
			HTMLReport:     c.Bool("html") || ws.cfg.Report.HTML,
			Server:         ws.server,
			Prompter:       prompter,
			OnItemStart:    onItemStart,
			OnConflict:     onConflict,
			OnItemComplete: onItemComplete,
		},
	})

	ids := c.Args().Slice()
	if len(ids) == 0 {
		ids = ws.flows.IDs()
	}
	if err := session.Select(ids...); err != nil {
		return err
	}

	// Cancel between items on Ctrl+C; the item in flight finishes
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Configure(ctx); err != nil {
		return explain(err)
	}
	if err := applyOverrides(session, selections, names); err != nil {
		return err
	}

	for round := 0; ; round++ {
		if err := session.Dispatch(wizard.Next{}); err != nil {
			return explain(err)
		}
		printPlan(session.State().(wizard.ReviewAndDeploy).Configs)
		if c.Bool("dry-run") {
			fmt.Printf("\n  %s\n", paint(warnStyle, "Dry run: nothing deployed"))
			return nil
		}

		fmt.Printf("\n%s\n", paint(headerStyle, "Execution"))
		batch, err := session.Deploy(ctx)
		if err != nil {
			return err
		}
		printSummary(batch)

		if batch.Success() {
			fmt.Printf("\n  %s %s\n", paint(dimStyle, "Report:"), filepath.Join(outputDir, "report.json"))
			return nil
		}
		if batch.Cancelled || round >= c.Int("retry-failed") {
			return fmt.Errorf("%d of %d deployments failed", batch.FailCount, batch.Total)
		}

		fmt.Printf("\n  %s\n", paint(warnStyle, fmt.Sprintf("Reviewing %d failed items", batch.FailCount)))
		if err := session.ReviewAndFix(ctx); err != nil {
			return err
		}
	}
}

// applyOverrides applies --select and --name to the configure step.
func applyOverrides(s *wizard.Session, selections, names map[string]string) error {
	for _, key := range sortedKeys(selections) {
		if err := s.SelectTarget(key, selections[key]); err != nil {
			return fmt.Errorf("--select %s: %w", key, err)
		}
	}
	for _, key := range sortedKeys(names) {
		if err := s.Dispatch(wizard.SetName{Key: key, Name: names[key]}); err != nil {
			return fmt.Errorf("--name %s: %w", key, err)
		}
	}
	return nil
}

// explain renders blocking errors with one line per problem.
func explain(err error) error {
	var gap *wizard.ValidationGapError
	if errors.As(err, &gap) {
		fmt.Printf("\n  %s\n", paint(failStyle, "Configuration incomplete:"))
		for _, g := range gap.Gaps {
			fmt.Printf("    %s %s\n", paint(failStyle, "✗"), g)
		}
		return err
	}
	var blocked *planner.BlockedError
	if errors.As(err, &blocked) {
		fmt.Printf("\n  %s\n", paint(failStyle, "Cannot configure:"))
		for _, key := range sortedKeys(blocked.Instances) {
			fmt.Printf("    %s %s: %v\n", paint(failStyle, "✗"), key, blocked.Instances[key])
		}
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printPlan(configs []core.DeploymentConfig) {
	fmt.Printf("\n%s\n", paint(headerStyle, "Review"))
	for _, cfg := range configs {
		target := cfg.ParentID()
		if p, ok := cfg.SelectedPath(); ok {
			target = p.String()
		} else if cfg.CreateAtBase {
			target = "base path " + cfg.BasePathID
		}
		how := "selected"
		if cfg.AutoSelected {
			how = "auto"
		}
		level := ""
		if cfg.InferredLevel != "" {
			level = " [" + cfg.InferredLevel + "]"
		}
		fmt.Printf("  %-28s %s -> %s%s %s\n", cfg.Key(), paint(pathHighlightStyle, cfg.GeneratedName),
			target, level, paint(dimStyle, "("+how+")"))
	}
}

// Live progress callbacks
func onItemStart(idx, total int, cfg core.DeploymentConfig) {
	fmt.Printf("  %s %s %s\n", paint(dimStyle, fmt.Sprintf("[%d/%d]", idx+1, total)), cfg.Key(), cfg.GeneratedName)
}

func onConflict(cfg core.DeploymentConfig, info core.ConflictInfo) {
	fmt.Printf("    %s %s\n", paint(warnStyle, "!"), info.Message)
}

func onItemComplete(_ int, result core.DeploymentResult, _ *core.BatchResult) {
	if result.Success {
		suffix := ""
		if result.Resolution != "" {
			suffix = " via " + result.Resolution
		}
		fmt.Printf("    %s %s (%s)%s\n", paint(okStyle, "✓"), result.TargetName, result.Duration.Round(time.Millisecond), suffix)
		return
	}
	fmt.Printf("    %s %s\n", paint(failStyle, "✗"), result.ErrorMessage)
}

func printSummary(batch *core.BatchResult) {
	fmt.Println()
	fmt.Println(strings.Repeat("═", 72))
	fmt.Printf("  %-28s %-10s %s\n", "Config", "Status", "Target")
	fmt.Println(strings.Repeat("─", 72))
	for _, r := range batch.Results {
		status := paint(okStyle, fmt.Sprintf("%-10s", "✓ OK"))
		detail := r.TargetName
		if !r.Success {
			status = paint(failStyle, fmt.Sprintf("%-10s", "✗ FAIL"))
			if r.ErrorKind == core.KindCancellation {
				status = paint(warnStyle, fmt.Sprintf("%-10s", "- CANCEL"))
			}
			detail = r.ErrorMessage
		}
		fmt.Printf("  %-28s %s %s\n", r.Config.Key(), status, detail)
	}
	fmt.Println(strings.Repeat("─", 72))
	fmt.Printf("  %s %d/%d succeeded\n", paint(headerStyle, "TOTAL"), batch.SuccessCount, batch.Total)
	fmt.Println(strings.Repeat("═", 72))
}
