// Package cli provides the command-line interface for flowdeploy.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to workspace config.yaml (default: ./config.yaml)",
		EnvVars: []string{"FLOWDEPLOY_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "flows",
		Aliases: []string{"f"},
		Usage:   "Flow set file or directory (overrides config)",
		EnvVars: []string{"FLOWDEPLOY_FLOWS"},
	},
	&cli.StringFlag{
		Name:    "server",
		Usage:   "External system API URL (overrides config)",
		EnvVars: []string{"FLOWDEPLOY_SERVER"},
	},
	&cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token for the external system",
		EnvVars: []string{"FLOWDEPLOY_TOKEN"},
	},
	&cli.BoolFlag{
		Name:  "mock",
		Usage: "Use an in-memory external system seeded from the config and flows",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"FLOWDEPLOY_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "flowdeploy",
		Usage:   "Deploy flows into the folder hierarchy of an orchestration system",
		Version: Version,
		Description: `flowdeploy places flows into an external folder tree. Each flow carries
hierarchy values per direction; flowdeploy finds the matching folder under the
configured base path, names the new target from a template and deploys it,
resolving naming conflicts as they come up.

Examples:
  flowdeploy validate
  flowdeploy names
  flowdeploy paths corp
  flowdeploy deploy --on-conflict deploy_anyway f1 f2
  flowdeploy --mock deploy --output ./out --flatten`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			deployCommand,
			pathsCommand,
			namesCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
