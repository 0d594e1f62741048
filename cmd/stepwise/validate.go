package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

type validateReport struct {
	Path     string                   `json:"path"`
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

func (c *cli) newValidateCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <workflow|glob>",
		Short: "Check workflow documents without running them",
		Long: `Validate runs the structural, semantic and graph checks over one
workflow file or every file matching a glob such as "flows/**/*.yaml".
The exit status is 1 when any document has errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.validate(cmd, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reports as JSON")
	return cmd
}

func (c *cli) validate(cmd *cobra.Command, target string, asJSON bool) error {
	var docs []*loader.Document
	if loader.IsGlob(target) {
		var err error
		if docs, err = loader.LoadGlob(target); err != nil {
			return err
		}
	} else {
		doc, err := loader.Load(target)
		if err != nil {
			return err
		}
		docs = []*loader.Document{doc}
	}

	reg, err := c.registry()
	if err != nil {
		return err
	}
	v, err := validation.NewWorkflowValidator(reg)
	if err != nil {
		return err
	}

	reports := make([]validateReport, 0, len(docs))
	invalid := 0
	for _, doc := range docs {
		res := v.ValidateDocument(doc.Raw, doc.Workflow)
		if !res.Valid() {
			invalid++
		}
		reports = append(reports, validateReport{
			Path:     doc.Path,
			Valid:    res.Valid(),
			Errors:   res.Errors,
			Warnings: res.Warnings,
		})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if err := writeJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			status := "ok"
			if !r.Valid {
				status = "invalid"
			}
			fmt.Fprintf(out, "%s: %s\n", r.Path, status)
			for _, issue := range r.Errors {
				fmt.Fprintf(out, "  error   %s [%s] %s\n", issue.Location(), issue.Code, issue.Message)
			}
			for _, issue := range r.Warnings {
				fmt.Fprintf(out, "  warning %s [%s] %s\n", issue.Location(), issue.Code, issue.Message)
			}
		}
	}

	if invalid > 0 {
		return halted(fmt.Sprintf("%d of %d workflow(s) invalid", invalid, len(docs)))
	}
	return nil
}
