package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/diagram"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/store"
)

func (c *cli) newDiagramCommand() *cobra.Command {
	var (
		format string
		output string
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "diagram <workflow>",
		Short: "Render a workflow graph",
		Long: `Render a workflow as Mermaid, ASCII, Graphviz DOT, SVG or PNG.

With --run, the steps of a recorded run (see --store) are marked as
visited or halted.`,
		Example: `  stepwise diagram flows/greet.json
  stepwise diagram flows/greet.json --format png -o greet.png
  stepwise diagram flows/greet.json --store runs.db --run 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.diagram(cmd, args[0], format, output, runID)
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", "mermaid", "Output format: mermaid, ascii, dot, svg or png")
	f.StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	f.StringVar(&runID, "run", "", "Overlay the step status of a recorded run")
	f.String("store", "", "libsql database holding recorded runs")
	return cmd
}

func (c *cli) diagram(cmd *cobra.Command, path, format, output, runID string) error {
	ctx := cmd.Context()

	doc, err := loader.Load(path)
	if err != nil {
		return err
	}

	var steps []*store.StepSummary
	if runID != "" {
		st, err := c.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if steps, err = store.NewEventLog(st).Steps(ctx, runID); err != nil {
			return err
		}
		if len(steps) == 0 {
			return fmt.Errorf("run %s has no recorded events", runID)
		}
	}

	model, err := diagram.Build(doc.Workflow, steps)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case "mermaid":
		data = []byte(diagram.RenderMermaid(model))
	case "ascii":
		data = []byte(diagram.RenderASCII(model))
	case diagram.FormatDOT, diagram.FormatSVG, diagram.FormatPNG:
		if format == diagram.FormatPNG && output == "" {
			return fmt.Errorf("png output requires -o <file>")
		}
		if data, err = diagram.RenderImage(ctx, model, format); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown diagram format %q (want mermaid, ascii, dot, svg or png)", format)
	}

	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	c.logger.Info("diagram written", "path", output, "format", format)
	return nil
}
