// Package cli implements the deadbolt command-line interface.
//
// Commands:
//
//	deadbolt pass     - run one gated seal pass
//	deadbolt dispatch - fire a critical action (one-shot per episode)
//	deadbolt verify   - re-check anchors and quorum, read-only
//	deadbolt status   - seal generation, journal size, recent health
//
// Only the top-level entry point terminates the process; everything below
// reports failures as values with itemized reasons.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the deadbolt CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "deadbolt",
		Short: "deadbolt - gated one-shot critical-action pipeline",
		Long: "deadbolt seals content deltas behind presence, anchor, and quorum gates\n" +
			"and permits exactly one firing of a critical action per satisfied episode.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPassCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// buildLogger constructs the process logger. Verbose selects the zap
// development config (debug level, console encoding); otherwise production.
func buildLogger(opts *RootOptions) (*zap.Logger, error) {
	if opts.Verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
