package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type plansOptions struct {
	format string
}

func (a *App) newPlansCmd() *cobra.Command {
	opts := &plansOptions{}

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the compiled cache plans",
		Long: `Print every cache plan of the user service after configuration.

Examples:
  weavedemo plans
  weavedemo plans --provider distributed --ttl 10m -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.plans(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func (a *App) plans(opts *plansOptions) error {
	d, err := a.flags.build(a.stderr)
	if err != nil {
		return fmt.Errorf("wire service: %w", err)
	}
	defer func() { _ = d.Close(context.Background()) }()

	plans := d.manager.Plans()
	switch opts.format {
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(plans); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plans)
	default:
		return fmt.Errorf("unknown output format %q", opts.format)
	}
}
