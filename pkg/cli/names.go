package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowdeploy/pkg/planner"
)

var namesCommand = &cli.Command{
	Name:      "names",
	Usage:     "Preview generated names and target selection",
	ArgsUsage: "[flow-id]...",
	Description: `Plans the given flows (default: all) without deploying and prints, per flow and
direction, the generated name, the auto-selected target path and the hierarchy
level it matched. Flows of unreachable instances are listed at the end.`,
	Action: func(c *cli.Context) error {
		defer openCommandLog()()

		ws, err := loadWorkspace(c)
		if err != nil {
			return err
		}
		ids := c.Args().Slice()
		if len(ids) == 0 {
			ids = ws.flows.IDs()
		}
		for _, id := range ids {
			if _, ok := ws.flows.Get(id); !ok {
				return fmt.Errorf("unknown flow %q", id)
			}
		}

		configs, err := ws.planner.Plan(c.Context, ws.flows.Select(ids), ws.dirs)
		if err != nil && !planner.IsBlocked(err) {
			return err
		}

		fmt.Printf("  %-28s %-30s %s\n", "Config", "Name", "Target")
		for _, cfg := range configs {
			target := paint(warnStyle, "(none)")
			if p, ok := cfg.SelectedPath(); ok {
				target = p.String()
				if cfg.InferredLevel != "" {
					target += paint(dimStyle, " ["+cfg.InferredLevel+"]")
				}
			} else if cfg.CreateAtBase {
				target = paint(dimStyle, "new at base path")
			}
			fmt.Printf("  %-28s %-30s %s\n", cfg.Key(), cfg.GeneratedName, target)
		}
		if err != nil {
			return explain(err)
		}
		return nil
	},
}
