// Package cli wires configuration, logging, storage and the directory service
// into the orgdir command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orgdirectory/internal/config"
	"orgdirectory/internal/core"
	"orgdirectory/internal/logging"
)

const serviceName = "orgdir"

// app holds what every subcommand needs. It is populated in the root
// PersistentPreRunE and released by runE once the subcommand returns.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    core.ClosableStore
	svc      *core.Service
	registry *prometheus.Registry

	envFile     string
	driver      string
	dumpMetrics bool
}

// NewRootCommand builds the orgdir command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Organization directory: buildings, activities and organizations",
		Long: `orgdir manages a directory of organizations located in buildings and
classified by a three-level activity tree. Storage is selected with
ORGDIR_STORAGE_DRIVER (memory, sqlite, postgres).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading ORGDIR_* variables")
	root.PersistentFlags().StringVar(&a.driver, "storage", "", "override ORGDIR_STORAGE_DRIVER")
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "print operation metrics to stderr on exit")

	root.AddCommand(
		newSeedCommand(a),
		newStatusCommand(a),
		newTreeCommand(a),
		newNearbyCommand(a),
		newSearchCommand(a),
		newExportCommand(a),
	)
	return root
}

// Execute runs the root command against ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	// cobra validates flags after the pre-run hooks; nothing may be opened
	// for a command that is going to be rejected
	if err := cmd.ValidateRequiredFlags(); err != nil {
		return err
	}
	if err := cmd.ValidateFlagGroups(); err != nil {
		return err
	}
	cfg, err := config.LoadFile(a.envFile)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Storage.Driver = a.driver
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = logger

	a.registry = prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := core.OpenPersistentStore(cmd.Context(), cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		_ = logger.Sync()
		return err
	}
	a.store = store
	a.svc = core.NewService(store,
		core.WithLogger(logging.Adapt(logger)),
		core.WithMetricsRecorder(metrics),
		core.WithTreeLevels(cfg.TreeMaxLevel),
	)
	logger.Debug("storage opened", zap.String("driver", cfg.Storage.Driver))
	return nil
}

// runE releases the store after fn, whether or not it failed.
func (a *app) runE(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		return errors.Join(err, a.close(cmd.ErrOrStderr()))
	}
}

func (a *app) close(stderr io.Writer) error {
	var errs []error
	if a.dumpMetrics && a.registry != nil {
		errs = append(errs, writeMetrics(stderr, a.registry))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logger != nil {
		// stderr sync fails on some terminals; nothing to recover
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
