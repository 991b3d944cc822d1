// Command fake-detection-report downloads the last mile fake detection reports
// of the current slot, builds the hub summary and detail parts, and pushes the
// summary to the escalation spreadsheet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fdreport/internal/config"
	"fdreport/internal/logging"
)

type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fatalf("error: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "fake-detection-report",
		Short: "Fake delivery detection report job",
		Long: `Fetches the numbered EkartReport CSVs of the current report slot, filters
and deduplicates them, joins the hub escalation matrix, writes the summary and
the detail parts and pushes the summary to Google Sheets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.runCmd(),
		a.fetchCmd(),
		a.previewCmd(),
		a.slotCmd(),
		a.historyCmd(),
		a.compareCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, a.verbose)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	a.logger.Debug("Loaded config", zap.String("path", a.configPath))
	return nil
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
