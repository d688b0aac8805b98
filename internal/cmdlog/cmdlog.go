package cmdlog

import (
	"time"

	"github.com/spf13/cobra"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
)

// Run executes f under the command's metrics and logs the outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"command": cmd, "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error("command_failed", fields)
	} else {
		logging.Info("command_ok", fields)
	}
	return err
}

// Wrap adapts a cobra RunE so it goes through Run.
func Wrap(name string, f func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return Run(name, func() error { return f(cmd, args) })
	}
}
