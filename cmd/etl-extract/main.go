// Command etl-extract orders relation dependencies and drives table
// extraction from configured upstream sources.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath    string
	flagKeepGoing     bool
	flagDryRun        bool
	flagMaxPartitions int64
	flagDiscoverRoot  string
	flagReportFormat  string
	flagVerbose       bool

	log *slog.Logger
)

func main() {
	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(rootCtx); err != nil {
		FatalError("%v", err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "etl-extract",
		Short:         "Order relation dependencies and extract upstream tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	root.PersistentFlags().StringVar(&flagConfigPath, "config", "config.yaml", "path to the run settings file")
	root.PersistentFlags().StringVar(&flagDiscoverRoot, "relations", "relations", "local root directory of table file sets")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	root.AddCommand(newOrderCommand())
	root.AddCommand(newExtractCommand())
	root.AddCommand(newManifestCommand())

	return root
}

// FatalError writes an error to stderr and exits with a non-zero code.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
