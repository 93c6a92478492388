package app

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"teamportal/internal/config"
	"teamportal/internal/db"
	"teamportal/internal/engine"
	"teamportal/internal/migrate"
)

// Options select the store and policy file for one process.
type Options struct {
	DB db.Config
	// ConfigPath overrides the workspace teamportal.yml.
	ConfigPath string
	Logger     *zap.Logger
}

// App is an opened, migrated store with the engine bound to it.
type App struct {
	DB     *sqlx.DB
	Config *config.Config
	Engine engine.Engine
}

// ResolveConfig prefers an explicit path, then the workspace file, then the
// built-in defaults.
func ResolveConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.FromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Open connects, applies pending migrations and builds the engine.
func Open(opts Options) (*App, error) {
	cfg, err := ResolveConfig(opts.DB.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(opts.DB)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e, err := engine.New(conn, cfg, opts.Logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &App{DB: conn, Config: cfg, Engine: e}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return errors.New("app not open")
	}
	return a.DB.Close()
}
