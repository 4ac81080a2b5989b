package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaisu-bhut/GeniQ/internal/guardrails"
	"github.com/vaisu-bhut/GeniQ/internal/writer"
)

// errFindings is returned by check --strict when the guardrails flag anything.
var errFindings = errors.New("guardrail findings present")

type checkFlags struct {
	file   string
	domain string
	strict bool
}

func newCheckCmd(load configLoader) *cobra.Command {
	var f checkFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the guardrails over an existing dataset",
		Long: `Run content safety and ethical compliance checks over a dataset written by
geniq (CSV or JSON) and print the guardrail report as JSON.`,
		Example: `  geniq check --file tabular_2026-01-02T15-04-05Z_1a2b3c4d.json --domain finance
  geniq check --file qa.csv --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			env, err := writer.Read(f.file)
			if err != nil {
				return err
			}

			domain := f.domain
			if domain == "" {
				domain = env.Metadata.Domain
			}

			g := guardrails.NewDefaultEngine(guardrails.Options{
				Policy:           cfg.Guardrails.Policy,
				MaxViolationRate: cfg.Guardrails.MaxViolationRate,
			})
			report := g.Evaluate(env.Data, domain)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}

			if f.strict && (!report.Safety.Passed || report.Compliance.ViolationCount > 0) {
				return fmt.Errorf("%w: %d flagged items, %d violations",
					errFindings, report.Safety.FlaggedItems, report.Compliance.ViolationCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Dataset file (.csv or .json) [required]")
	cmd.Flags().StringVarP(&f.domain, "domain", "d", "", "Domain rule set (default: the dataset's recorded domain)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Exit non-zero when anything is flagged")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
