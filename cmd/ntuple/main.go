package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/config"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/observability"
)

var version = "0.1.0"

// app holds the state shared by all subcommands.
type app struct {
	configFile string
	logLevel   string
	cfg        *config.BaseConfig
	monitor    *metrics.ResourceMonitor
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ntuple",
		Short: "ntuple - write and post-process columnar event containers",
		Long: `ntuple copies event containers with their run and luminosity bookkeeping,
writes friend trees, lists container contents and exports trees to Parquet or Arrow.

Settings come from an optional YAML or JSON file (--config) and NTUPLE_* environment variables.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to job configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ntuple v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newCopyCmd(a), newFriendCmd(a), newInspectCmd(a), newExportCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Observability.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(cfg.Observability.LoggerConfig()); err != nil {
		return err
	}
	if err := observability.InitTracing(cfg.Observability.TracingConfig("ntuple", version)); err != nil {
		return err
	}
	a.monitor = metrics.NewResourceMonitor()
	logger.Debug("configuration loaded",
		zap.String("job", cfg.Name),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("mode", cfg.Output.Mode))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.cfg == nil {
		return nil
	}
	usage := a.monitor.Publish()
	logger.Debug("resource usage",
		zap.Uint64("rss_bytes", usage.MemoryRSS),
		zap.Float64("cpu_percent", usage.CPUPercent))

	if path := a.cfg.Observability.MetricsFile; path != "" {
		if err := metrics.Dump(path); err != nil {
			logger.Warn("failed to dump metrics", zap.String("path", path), errors.Field(err))
		}
	}
	if err := observability.Shutdown(context.Background()); err != nil {
		logger.Warn("failed to shut down tracing", errors.Field(err))
	}
	_ = logger.Sync()
	return nil
}

func newCopyCmd(a *app) *cobra.Command {
	var tree string
	cmd := &cobra.Command{
		Use:   "copy INPUT OUTPUT",
		Short: "Clone an input tree with its bookkeeping into a new container",
		Long: `Copy clones the input tree (after branch selection) into OUTPUT together with the
Runs and LuminosityBlocks trees, filtered by the luminosity JSON when one is configured,
the provenance entries when enabled, and every other object of the input.

Example:
  ntuple copy -c job.yaml data/run2024A skims/run2024A`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tree != "" {
				a.cfg.Output.Tree = tree
			}
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			res, err := newJob(a.cfg, store, args[0], args[1]).runCopy(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d rows written to %s\n", a.cfg.Output.Tree, res.OutputRows, res.InputRows, args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&tree, "tree", "t", "", "Input tree name; overrides output.tree")
	return cmd
}

func newFriendCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "friend INPUT OUTPUT",
		Short: "Write a friend tree for an input tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" {
				a.cfg.Output.FriendName = name
			}
			store, err := openStore(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			res, err := newJob(a.cfg, store, args[0], args[1]).runFriend(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "friend tree with %d rows written to %s\n", res.OutputRows, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Friend tree name; overrides output.friend_name")
	return cmd
}
