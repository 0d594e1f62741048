package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/config"
	"github.com/rendis/stepwise/internal/logging"
)

// cli holds the state shared by every subcommand.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "stepwise",
		Short: "stepwise - workflow state machine interpreter",
		Long: `stepwise executes workflow documents: a graph of Start, Condition,
Command and End steps walked one step at a time, with every transition
reported as an event.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "Path to config file (default: ./stepwise.yaml or ~/.stepwise/stepwise.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	root.AddCommand(
		c.newRunCommand(),
		c.newValidateCommand(),
		c.newDiagramCommand(),
		c.newScheduleCommand(),
		c.newCommandsCommand(),
		c.newHistoryCommand(),
		c.newMCPCommand(),
		c.newVersionCommand(),
	)
	return root
}

// setup loads the configuration with the invoked command's flags bound
// and builds the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logging.New(cfg.Log.Level, logging.Format(cfg.Log.Format), c.stderr)
	return nil
}
