package main

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"
	"os/user"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kvrepo/kvrepo/bolt"
	"github.com/kvrepo/kvrepo/leveldb"
	"github.com/kvrepo/kvrepo/migration"
	"github.com/kvrepo/kvrepo/migration/all"
	"github.com/kvrepo/kvrepo/repo"
)

func main() {
	Execute()
}

var (
	repoDir     string
	metricsAddr string
	verbose     bool
)

func kvrepoDir() (string, error) {
	var dir string
	// By default the repository lives in the current user's home directory.
	u, err := user.Current()
	if err == nil {
		dir = u.HomeDir
	} else if home := os.Getenv("HOME"); home != "" {
		dir = home
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	dir = filepath.Join(dir, ".kvrepo")

	return dir, nil
}

func init() {
	dir, err := kvrepoDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to determine kvrepo directory: %v", err)
		os.Exit(1)
	}

	viper.SetEnvPrefix("KVREPO")

	rootCmd.PersistentFlags().StringVar(&repoDir, "repo", dir, "path to the repository directory")
	viper.BindEnv("DIR")
	if h := viper.GetString("DIR"); h != "" {
		repoDir = h
	}

	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "bind address for a prometheus metrics endpoint during migrations")
	viper.BindEnv("METRICS_ADDR")
	if h := viper.GetString("METRICS_ADDR"); h != "" {
		metricsAddr = h
	}

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	viper.BindEnv("VERBOSE")
	if h := viper.GetBool("VERBOSE"); h {
		verbose = h
	}

	migrateCmd.Flags().IntVar(&migrateTo, "to", latestVersion(), "target repository version")
	revertCmd.Flags().IntVar(&revertTo, "to", 0, "target repository version")

	rootCmd.AddCommand(initCmd, statusCmd, migrateCmd, revertCmd, createCmd)
}

var rootCmd = &cobra.Command{
	Use:   "kvrepo",
	Short: "kvrepo repository migration tool",
	Long:  "Applies an ordered sequence of reversible migrations to the key value stores of a kvrepo repository.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.DisableStacktrace = true
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v", err)
		os.Exit(1)
	}
	return logger
}

func latestVersion() int {
	if len(all.Migrations) == 0 {
		return 0
	}
	return all.Migrations[len(all.Migrations)-1].Version
}

func printProgress(percent int, message string) {
	fmt.Printf("[%3d%%] %s\n", percent, message)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new repository with the default store layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := repo.Config{
			Stores: []repo.StoreConfig{
				{Name: "root", Backend: bolt.Kind, Path: "root.bolt"},
				{Name: "blocks", Backend: leveldb.Kind},
				{Name: "keys", Backend: leveldb.Kind},
				{Name: "datastore", Backend: leveldb.Kind},
				{Name: "pins", Backend: leveldb.Kind},
			},
		}

		logger := newLogger()
		defer logger.Sync()

		if _, err := repo.Init(logger, repoDir, cfg); err != nil {
			return err
		}
		fmt.Println("Initialized repository at", repoDir)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the repository version and the state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		r, err := repo.Open(logger, repoDir)
		if err != nil {
			return err
		}

		version, err := r.Version()
		if err != nil {
			return err
		}

		fmt.Printf("repository: %s\nversion:    %d (latest %d)\n\n", repoDir, version, latestVersion())
		for _, m := range all.Migrations {
			state := "pending"
			if m.Version <= version {
				state = "applied"
			}
			fmt.Printf("%04d  %-40s %s\n", m.Version, m.Description, state)
		}
		return nil
	},
}

var migrateTo int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the repository up to the target version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd.Context(), migrateTo, migration.Up)
	},
}

var revertTo int

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Revert the repository down to the target version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd.Context(), revertTo, migration.Down)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Scaffold the next numbered migration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return migration.CreateNewMigration(all.Migrations, args[0])
	},
}

func runPlan(ctx context.Context, target int, want migration.Direction) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := newLogger()
	defer logger.Sync()

	r, err := repo.Open(logger, repoDir)
	if err != nil {
		return err
	}

	current, err := r.Version()
	if err != nil {
		return err
	}

	plan, err := migration.Resolve(all.Migrations, current, target)
	if err != nil {
		return err
	}
	if len(plan.Migrations) == 0 {
		fmt.Printf("repository is already at version %d\n", current)
		return nil
	}
	if plan.Direction != want {
		return fmt.Errorf("version %d is not %s from %d", target, want, current)
	}

	release, err := r.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			err = multierror.Append(err, rerr).ErrorOrNil()
		}
	}()

	driver := migration.NewDriver(logger, r.Stores(), r.OpenStore, printProgress)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(driver.PrometheusCollectors()...)
		go func() {
			if err := nethttp.ListenAndServe(metricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})); err != nil {
				logger.Warn("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	if err := driver.Apply(ctx, plan, r.SetVersion); err != nil {
		return err
	}

	fmt.Printf("repository is now at version %d\n", target)
	return nil
}
