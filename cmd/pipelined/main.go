// Command pipelined runs the silence-aware transcription pipeline, either
// as a one-shot run against a single object-store file or as a long-lived
// HTTP API dispatching many concurrent runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/streamscribe/streamscribe/internal/cli"
	"github.com/streamscribe/streamscribe/internal/ffmpeg"
	"github.com/streamscribe/streamscribe/internal/types"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitTransport  = 5
	ExitAnalysis   = 6
	ExitInterrupt  = 130
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:     "pipelined",
		Short:   "Plan, transcribe, and reconcile long audio files in chunks",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.RunCmd(env))
	rootCmd.AddCommand(cli.ServeCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a returned error to a process exit code. Pipeline errors
// carry a types.Kind; everything else falls back to usage/general
// classification.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	if isCobraUsageError(err) {
		return ExitUsage
	}

	if errors.Is(err, ffmpeg.ErrNotFound) {
		return ExitSetup
	}

	var pipelineErr *types.PipelineError
	if errors.As(err, &pipelineErr) {
		switch pipelineErr.Kind {
		case types.KindValidationError, types.KindTooLong:
			return ExitValidation
		case types.KindTransport:
			return ExitTransport
		case types.KindAnalysisFailed:
			return ExitAnalysis
		case types.KindCancelled:
			return ExitInterrupt
		case types.KindNotFound:
			return ExitValidation
		case types.KindInternalInvariant:
			return ExitGeneral
		}
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns are error message substrings that indicate Cobra
// flag/arg parsing errors. Cobra doesn't expose typed errors for these, so
// string matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"flag needs an argument",
	"invalid argument",
	"if any flags in the group",
	"accepts ",
	"requires at least",
	"requires at most",
}

func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
