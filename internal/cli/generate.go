package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vaisu-bhut/GeniQ/internal/config"
	"github.com/vaisu-bhut/GeniQ/internal/engine"
	"github.com/vaisu-bhut/GeniQ/internal/writer"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
	"github.com/vaisu-bhut/GeniQ/pkg/server"
)

type configLoader func() (*config.Config, error)

// engineFactory builds the engine for one CLI invocation. The returned
// closer releases whatever the engine holds open.
type engineFactory func(ctx context.Context, cfg *config.Config) (*engine.Engine, func() error, error)

func pipelineEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func() error, error) {
	p, err := server.NewPipeline(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return p.Engine, p.Close, nil
}

type generateFlags struct {
	kind   string
	file   string
	outDir string
	format string
}

func newGenerateCmd(load configLoader) *cobra.Command {
	return newGenerateCmdWith(load, pipelineEngine)
}

func newGenerateCmdWith(load configLoader, build engineFactory) *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a dataset from a request file",
		Long: `Generate a synthetic dataset from a YAML or JSON request file and write it
to the output directory. The written path is printed on stdout.`,
		Example: `  # Tabular dataset as CSV
  geniq generate --type tabular --file survey.yaml

  # Q&A pairs as JSON into a custom directory
  geniq generate --type qa --file finance-qa.yaml --format json --out ./datasets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readRequest(f.kind, f.file)
			if err != nil {
				return err
			}
			if f.format != "" {
				setFormat(req, models.OutputFormat(f.format))
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			if f.outDir != "" {
				cfg.Output.Dir = f.outDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, closeFn, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			path, err := eng.Generate(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			printSummary(cmd, path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.kind, "type", "t", "", "Dataset type: tabular or qa [required]")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Request file (YAML or JSON) [required]")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "Output directory (default $GENIQ_OUTPUT_DIR or ~/.geniq/datasets)")
	cmd.Flags().StringVar(&f.format, "format", "", "Override the request's output format (csv, json)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readRequest decodes a request file into the variant named by kind.
// yaml.v3 accepts JSON documents as well.
func readRequest(kind, path string) (models.GenerationRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var req models.GenerationRequest
	switch models.DatasetType(kind) {
	case models.DatasetTabular:
		req = &models.TabularRequest{}
	case models.DatasetQA:
		req = &models.QARequest{}
	default:
		return nil, contracts.NewError(contracts.KindInvalidRequest, fmt.Sprintf("unknown dataset type %q (want tabular or qa)", kind), nil)
	}
	if err := yaml.Unmarshal(raw, req); err != nil {
		return nil, contracts.NewError(contracts.KindInvalidRequest, "parse request "+path, err)
	}
	return req, nil
}

func setFormat(req models.GenerationRequest, format models.OutputFormat) {
	switch r := req.(type) {
	case *models.TabularRequest:
		r.OutputFormat = format
	case *models.QARequest:
		r.OutputFormat = format
	}
}

func printSummary(cmd *cobra.Command, path string) {
	env, err := writer.Read(path)
	if err != nil {
		return
	}
	md := env.Metadata
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d/%d accepted, %d dropped, %d regenerations, safety %.1f, compliance %.2f\n",
		md.DatasetType, md.Accepted, md.Requested, md.Dropped, md.Regenerations,
		md.Guardrails.Safety.SafetyScore, md.Guardrails.Compliance.ComplianceScore)
}
