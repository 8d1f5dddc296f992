// Package cli implements betctl, the command-line client for the bet
// processor HTTP API.
package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Format  string // "json" | "text"
	Timeout time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultAddr is used when neither --addr nor BETCTL_ADDR is set.
const DefaultAddr = "http://localhost:8080"

// NewRootCommand creates the root command for betctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "betctl",
		Short: "Client for the bet processor",
		Long:  "Submit bet updates, inspect the running summary and review archive, and drain the bet processor.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	addr := DefaultAddr
	if env := os.Getenv("BETCTL_ADDR"); env != "" {
		addr = env
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", addr, "bet processor base URL (env BETCTL_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 35*time.Second, "request timeout")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewShutdownCommand(opts))
	cmd.AddCommand(NewReviewsCommand(opts))
	cmd.AddCommand(NewSettlementsCommand(opts))

	return cmd
}
