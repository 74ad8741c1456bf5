package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/stores"
	"github.com/devforge/devforge/pkg/telemetry"
	"github.com/devforge/devforge/pkg/transports"
	"github.com/devforge/devforge/pkg/transports/local"
	sshtransport "github.com/devforge/devforge/pkg/transports/ssh"
)

var (
	// Global flags
	dbPath     string
	verbose    bool
	jsonOutput bool

	// Build metadata, set by Execute for telemetry identification.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devforge",
		Short: "DevForge - Development Environment Provisioning",
		Long: `DevForge provisions and maintains development and CI machines.

It applies idempotent roles over SSH (or locally), keeps run history and
host facts in a local database, enforces rego policies on every plan, and
builds reproducible release archives from git.

Roles:
  - bootstrap:  minimal python toolchain for everything else
  - base:       dev user, sudo, repos, shell conveniences
  - cacheproxy: squid package-download cache
  - database:   mongodb server for integration tests
  - coverage:   python coverage instrumentation for services
  - publish:    published-content directory tree behind the web server`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "state database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newBootstrapCommand())
	rootCmd.AddCommand(newFactsCommand())
	rootCmd.AddCommand(newHostsCommand())
	rootCmd.AddCommand(newRolesCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newArchiveCommand())

	return rootCmd
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "devforge.db"
	}
	return filepath.Join(home, ".devforge", "devforge.db")
}

// openStore opens, initializes, and migrates the state database.
func openStore(ctx context.Context) (stores.Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// newTelemetry builds the telemetry handle honoring the global flags.
func newTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		// Keep stderr machine-readable when stdout is.
		cfg.Logging.Format = "json"
	}
	return telemetry.NewTelemetry(cfg)
}

// connectHost opens a transport to the host: in-process for local
// addresses, SSH for everything else.
func connectHost(ctx context.Context, host *engine.Host) (transports.Conn, error) {
	switch host.Address {
	case "local", "localhost", "127.0.0.1":
		return local.New(), nil
	}

	cfg := sshtransport.DefaultConfig(host.Address, host.User)
	if host.Port != 0 {
		cfg.Port = host.Port
	}
	if host.KeyPath != "" {
		cfg.PrivateKeyPath = host.KeyPath
	}

	client, err := sshtransport.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, engine.NewTransientError(
			fmt.Sprintf("failed to connect to %s", host.Name), err).
			WithCode(engine.ErrCodeConnectFailed)
	}

	return client, nil
}
