package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowdeploy/pkg/core"
)

var pathsCommand = &cli.Command{
	Name:      "paths",
	Usage:     "List the target paths of an instance",
	ArgsUsage: "<instance-key>",
	Description: `Fetches the folder tree of the instance a root hierarchy value maps to and
prints every path. Base paths are marked with the direction they serve.

Example:
  flowdeploy paths corp`,
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected one instance key, got %d arguments", c.NArg())
		}
		defer openCommandLog()()

		ws, err := loadWorkspace(c)
		if err != nil {
			return err
		}

		key := c.Args().First()
		id, ok := ws.planner.InstanceID(key)
		if !ok {
			return core.ErrUnknownInstance.WithMessage(fmt.Sprintf("no instance configured for %q", key))
		}
		tree, err := ws.cache.Get(c.Context, id)
		if err != nil {
			return err
		}
		settings, err := ws.cache.Settings(c.Context, id)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%d paths)\n", paint(headerStyle, key), paint(dimStyle, id), tree.Len())
		for _, p := range tree.Paths {
			line := fmt.Sprintf("  %-20s %s", p.ID, p.String())
			var marks []string
			for _, dir := range []core.Direction{core.DirectionSource, core.DirectionDestination} {
				if bp := settings.For(dir); bp != nil && bp.ID == p.ID {
					marks = append(marks, string(dir))
				}
			}
			if len(marks) > 0 {
				line = paint(pathHighlightStyle, line) + paint(dimStyle, fmt.Sprintf("  base %v", marks))
			}
			fmt.Println(line)
		}
		return nil
	},
}
