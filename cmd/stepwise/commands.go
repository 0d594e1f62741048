package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/commands"
)

func (c *cli) newCommandsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "commands [name]",
		Short: "List the registered commands and their inputs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			descs := reg.List()
			if len(args) == 1 {
				d, ok := reg.Descriptor(args[0])
				if !ok {
					return fmt.Errorf("unknown command %q", args[0])
				}
				descs = []commands.Descriptor{d}
			}
			if asJSON {
				return writeJSON(out, descs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tREQUIRED\tOPTIONAL\tOUTPUTS\tDESCRIPTION")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					d.Name, list(d.Required), list(d.Optional), list(d.Outputs), d.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func list(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
