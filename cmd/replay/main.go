// Command replay serves and exercises pages that capture clicks before their
// components load and replay them afterwards.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/replay/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	config   string
	logLevel string
	noColor  bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "replay",
		Short: "Early click capture and replay for server-rendered pages",
		Long: `replay hosts server-rendered pages whose clicks are captured before the
client code has loaded and replayed once the components are upgraded.

Commands:
  serve     host the demo shop over HTTP and WebSocket
  simulate  run a page load offline and print what was replayed
  bench     drive many websocket clients against an in-process server
  journal   inspect and clean up persisted replay journals`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Config file or directory (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		serveCmd(&flags),
		simulateCmd(&flags),
		benchCmd(&flags),
		journalCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
