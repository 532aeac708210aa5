// Command recipe-tagger seeds the tag taxonomy, tags recipes and serves the
// tagging API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/holidaychanneldottv/recipe-tagger/internal/logging"
	"github.com/holidaychanneldottv/recipe-tagger/internal/metrics"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/config"
	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitInvalid  = 2
	exitNotFound = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, internalerr.ErrInvalidConfig), errors.Is(err, internalerr.ErrInvalidInput):
		return exitInvalid
	case errors.Is(err, internalerr.ErrNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}

type app struct {
	configPath string
	jsonOutput bool
	out        io.Writer

	// set by loadConfig
	cfg *config.Config
	log *zap.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "recipe-tagger",
		Short:         "Tag recipes with holiday, cuisine, diet, region and course categories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "print operation results as JSON")

	root.AddCommand(
		a.seedCmd(),
		a.tagAllCmd(),
		a.tagOneCmd(),
		a.runCmd(),
		a.serveCmd(),
		a.importCmd(),
		a.taxonomyCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logging.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// withTagger loads the configuration, opens the store and hands a ready
// Tagger to fn. The store is closed when fn returns.
func (a *app) withTagger(ctx context.Context, fn func(*tagger.Tagger) error) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	defer a.log.Sync()

	comp, err := (&config.Loader{Config: a.cfg, Logger: a.log}).Load(ctx)
	if err != nil {
		return err
	}
	tg, err := comp.Tagger(metrics.Recorder{})
	if err != nil {
		comp.Store.Close()
		return err
	}
	defer tg.Close()

	return fn(tg)
}
