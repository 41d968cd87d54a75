package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/sqlload/internal/config"
	"github.com/gerhard-ee/sqlload/internal/database"
	"github.com/gerhard-ee/sqlload/internal/loader"
	"github.com/gerhard-ee/sqlload/internal/objectstore"
	"github.com/gerhard-ee/sqlload/internal/pipeline"
	"github.com/gerhard-ee/sqlload/internal/state"
)

// globals are the connection settings shared by every command. Flags that
// were set override the config file.
type globals struct {
	configFile string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{cfg: *config.Default()}

	cmd := &cobra.Command{
		Use:           "sqlload",
		Short:         "Load staged files into warehouse tables",
		Long:          "Loads CSV and Parquet files from object storage into a staging table and merges them into the target table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&g.configFile, "config", "c", "", "Path to a YAML config file")

	// Database connection flags
	f.StringVarP(&g.cfg.Type, "type", "t", "", "Database type (postgres, mssql, bigquery, snowflake, databricks, duckdb, sqlite)")
	f.StringVar(&g.cfg.Host, "host", "", "Database host")
	f.IntVar(&g.cfg.Port, "port", 0, "Database port")
	f.StringVar(&g.cfg.User, "user", "", "Database user")
	f.StringVar(&g.cfg.Password, "password", "", "Database password")
	f.StringVar(&g.cfg.Database, "database", "", "Database name, or file path for DuckDB and SQLite")
	f.StringVar(&g.cfg.Schema, "schema", "", "Default schema for targets without one")

	// BigQuery specific flags
	f.StringVar(&g.cfg.ProjectID, "project", "", "Google Cloud project ID (required for BigQuery)")
	f.StringVar(&g.cfg.Location, "location", "", "BigQuery dataset location")

	// Snowflake specific flags
	f.StringVar(&g.cfg.Account, "account", "", "Snowflake account identifier")
	f.StringVar(&g.cfg.Warehouse, "warehouse", "", "Snowflake warehouse name")
	f.StringVar(&g.cfg.Role, "role", "", "Snowflake role name")
	f.StringVar(&g.cfg.StorageIntegration, "storage-integration", "", "Snowflake storage integration used by COPY INTO")

	// Databricks specific flags
	f.StringVar(&g.cfg.Workspace, "workspace", "", "Databricks workspace hostname")
	f.StringVar(&g.cfg.HTTPPath, "http-path", "", "Databricks SQL warehouse HTTP path")
	f.StringVar(&g.cfg.Token, "token", "", "Databricks access token")
	f.StringVar(&g.cfg.Catalog, "catalog", "", "Databricks catalog name")

	// State management flags
	f.StringVar(&g.cfg.State.Type, "state-type", g.cfg.State.Type, "State management type (memory, file or kubernetes)")
	f.StringVar(&g.cfg.State.Dir, "state-dir", g.cfg.State.Dir, "Directory of the file state backend")
	f.StringVar(&g.cfg.State.Namespace, "namespace", g.cfg.State.Namespace, "Kubernetes namespace for state management")
	f.DurationVar(&g.cfg.State.LockTTL, "lock-ttl", g.cfg.State.LockTTL, "How long a target lock is held before it may be taken over")

	f.StringVar(&g.cfg.Log.Level, "log-level", g.cfg.Log.Level, "Log level (debug, info, warn, error)")
	f.StringVar(&g.cfg.Log.Format, "log-format", g.cfg.Log.Format, "Log format (text or json)")

	cmd.AddCommand(
		newLoadCmd(g),
		newRunCmd(g),
		newPlanCmd(g),
		newRunsCmd(g),
	)
	return cmd
}

// config merges the config file with the flags set on the command line
func (g *globals) config(cmd *cobra.Command) (*config.Config, error) {
	if g.configFile == "" {
		cfg := g.cfg
		return &cfg, cfg.Validate()
	}

	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("type", &cfg.Type, g.cfg.Type)
	set("host", &cfg.Host, g.cfg.Host)
	set("user", &cfg.User, g.cfg.User)
	set("password", &cfg.Password, g.cfg.Password)
	set("database", &cfg.Database, g.cfg.Database)
	set("schema", &cfg.Schema, g.cfg.Schema)
	set("project", &cfg.ProjectID, g.cfg.ProjectID)
	set("location", &cfg.Location, g.cfg.Location)
	set("account", &cfg.Account, g.cfg.Account)
	set("warehouse", &cfg.Warehouse, g.cfg.Warehouse)
	set("role", &cfg.Role, g.cfg.Role)
	set("storage-integration", &cfg.StorageIntegration, g.cfg.StorageIntegration)
	set("workspace", &cfg.Workspace, g.cfg.Workspace)
	set("http-path", &cfg.HTTPPath, g.cfg.HTTPPath)
	set("token", &cfg.Token, g.cfg.Token)
	set("catalog", &cfg.Catalog, g.cfg.Catalog)
	set("state-type", &cfg.State.Type, g.cfg.State.Type)
	set("state-dir", &cfg.State.Dir, g.cfg.State.Dir)
	set("namespace", &cfg.State.Namespace, g.cfg.State.Namespace)
	set("log-level", &cfg.Log.Level, g.cfg.Log.Level)
	set("log-format", &cfg.Log.Format, g.cfg.Log.Format)
	if flags.Changed("port") {
		cfg.Port = g.cfg.Port
	}
	if flags.Changed("lock-ttl") {
		cfg.State.LockTTL = g.cfg.State.LockTTL
	}
	return cfg, cfg.Validate()
}

// app holds everything a command needs to talk to the warehouse
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  database.TableStore
	runner *pipeline.Runner
}

func (g *globals) open(cmd *cobra.Command, opts ...loader.Option) (*app, error) {
	cfg, err := g.config(cmd)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	objects, err := objectstore.New(ctx, cfg.Objects, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up object storage: %w", err)
	}
	stateManager, err := state.NewManager(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}
	store, err := database.NewTableStore(ctx, cfg, objects, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	if scripts, ok := store.(database.ScriptRunner); ok {
		opts = append([]loader.Option{loader.WithExtractRunner(scripts.RunScript)}, opts...)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		runner: pipeline.NewRunner(store, objects, stateManager, cfg.State.LockTTL, logger, opts...),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withDefaultSchema fills in the configured schema for targets without one
func (a *app) withDefaultSchema(job *pipeline.Job) {
	if job.Request.Target.Schema == "" {
		job.Request.Target.Schema = a.cfg.Schema
	}
}

// targetName resolves a target given on the command line to the name runs
// are recorded under
func (a *app) targetName(s string) string {
	t := parseTable(s)
	if t.Schema == "" {
		t.Schema = a.cfg.Schema
	}
	return t.String()
}

// signalContext cancels on SIGINT and SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// execute runs fn with an open app and reports the error on stderr
func (g *globals) execute(cmd *cobra.Command, fn func(ctx context.Context, a *app) error, opts ...loader.Option) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	a, err := g.open(cmd, opts...)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	err = errors.Join(fn(ctx, a), a.Close())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return err
}
