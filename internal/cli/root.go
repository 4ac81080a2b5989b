// Package cli provides the geniq CLI commands.
package cli

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaisu-bhut/GeniQ/internal/config"
	"github.com/vaisu-bhut/GeniQ/pkg/contracts"
)

// Version is injected during build.
var Version = "dev"

// Exit codes by failure class.
const (
	ExitFailure     = 1
	ExitInvalid     = 2
	ExitUnavailable = 3
	ExitBlocked     = 4
)

// NewRootCmd builds the geniq command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "geniq",
		Short: "geniq generates validated synthetic datasets",
		Long: `geniq turns a tabular schema or a Q&A domain description into a validated
synthetic dataset using the configured model providers.

Providers and pipeline settings are read from the environment (GEMINI_API_KEY,
OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_HOST, GENIQ_*) and optionally from
the YAML file named by GENIQ_CONFIG.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).Level(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	root.AddCommand(newGenerateCmd(config.Load))
	root.AddCommand(newCheckCmd(config.Load))
	return root
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, contracts.ErrInvalidRequest):
		return ExitInvalid
	case errors.Is(err, contracts.ErrGeneratorUnavailable):
		return ExitUnavailable
	case errors.Is(err, contracts.ErrGuardrailBlocked), errors.Is(err, errFindings):
		return ExitBlocked
	default:
		return ExitFailure
	}
}

func init() {
	// Keep library logs off the terminal until a command configures them.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
}
