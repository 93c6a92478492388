package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"teamportal/internal/app"
	"teamportal/internal/db"
	"teamportal/internal/engine"
	"teamportal/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "Team portal task operations",
	Long: `tp runs the team portal's background task jobs against the task store.

- sync-status rolls a task's status change up through its ancestors.
- process-overdue notifies assignees of overdue work, escalates to managers and raises priority.
- analytics aggregates task metrics across the organization.
- bulk applies one change to many tasks on behalf of a superadmin.
- serve exposes the same jobs over HTTP and runs the scheduled ones.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("dsn") != "" {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMPORTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("db-driver", db.DriverSQLite, "database driver (sqlite or postgres)")
	flags.String("dsn", "", "database DSN; defaults to the workspace sqlite file")
	flags.String("config", "", "policy file (defaults to <workspace>/teamportal.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "acting user id for bulk operations")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")
	flags.String("storage-type", storage.TypeLocal, "analytics snapshot storage (local or s3)")
	flags.String("storage-dir", "", "local snapshot directory (defaults to <workspace>/.teamportal/snapshots)")
	flags.String("s3-bucket", "", "S3 bucket for snapshots")
	flags.String("s3-prefix", "", "S3 key prefix for snapshots")
	flags.String("s3-region", "", "S3 region")
	for _, name := range []string{
		"workspace", "db-driver", "dsn", "config", "json", "actor-id", "log-level", "log-format",
		"storage-type", "storage-dir", "s3-bucket", "s3-prefix", "s3-region",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncStatusCmd())
	rootCmd.AddCommand(processOverdueCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(bulkCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(snapshotsCmd())
	rootCmd.AddCommand(configCmd())
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	switch viper.GetString("log-format") {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", viper.GetString("log-format"))
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func openApp() (*app.App, *zap.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(app.Options{
		DB: db.Config{
			Driver:    viper.GetString("db-driver"),
			DSN:       viper.GetString("dsn"),
			Workspace: viper.GetString("workspace"),
		},
		ConfigPath: viper.GetString("config"),
		Logger:     log,
	})
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, log, err := openApp()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func snapshotStore(ctx context.Context) (storage.Storage, error) {
	dir := viper.GetString("storage-dir")
	if dir == "" {
		ws, err := db.EnsureWorkspace(viper.GetString("workspace"))
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(ws, "snapshots")
	}
	return storage.New(ctx, storage.Config{
		Type:     viper.GetString("storage-type"),
		LocalDir: dir,
		Bucket:   viper.GetString("s3-bucket"),
		Prefix:   viper.GetString("s3-prefix"),
		Region:   viper.GetString("s3-region"),
	})
}

func printJSONOrValue(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
