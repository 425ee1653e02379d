package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowdeploy/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Check flows against the workspace configuration",
	Description: `Parses every flow file and reports all problems at once: unknown hierarchy
attributes, missing values per direction, flows whose root value maps to no
instance, and naming templates that reference levels the hierarchy lacks.

Nothing is sent to the external system.`,
	Action: func(c *cli.Context) error {
		cfg, cfgDir, err := loadConfig(c)
		if err != nil {
			return err
		}
		path, err := flowsPath(c, cfg, cfgDir)
		if err != nil {
			return err
		}
		dirs, err := cfg.ParsedDirections()
		if err != nil {
			return err
		}

		v := validator.New(validator.Options{
			Hierarchy:  cfg.Hierarchy,
			Template:   cfg.Naming.Template,
			Directions: dirs,
			Instances:  cfg.Instances,
		})
		result := v.Validate(path)

		fmt.Printf("%s %s\n", paint(dimStyle, "Flows:"), path)
		if !result.IsValid() {
			for _, e := range result.Errors {
				fmt.Printf("  %s %v\n", paint(failStyle, "✗"), e)
			}
			return fmt.Errorf("validation failed: %d errors", len(result.Errors))
		}
		fmt.Printf("  %s %d flows in %d files\n", paint(okStyle, "✓"), result.Flows, len(result.Files))
		return nil
	},
}
