package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and27/pcengine/internal/config"
	"github.com/and27/pcengine/internal/db"
	"github.com/and27/pcengine/internal/engine"
	"github.com/and27/pcengine/internal/github"
	"github.com/and27/pcengine/internal/logging"
	"github.com/and27/pcengine/internal/migrate"
	"github.com/and27/pcengine/internal/repo"
)

// Options selects the workspace and lets flags override the config file.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	Logger    *zap.Logger
}

// App bundles everything a command or the server needs for one workspace.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Repo    repo.Repo
	Engine  engine.Engine
	Logger  *zap.Logger
	// Redis and OAuth are nil unless the GitHub integration is configured.
	Redis *redis.Client
	OAuth *github.OAuth
}

// Open loads config, opens and migrates the store and wires the engine.
// A missing pcengine.yml falls back to defaults.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, opts, cfg)
}

func OpenWithConfig(ctx context.Context, opts Options, cfg *config.Config) (*App, error) {
	logger := logging.OrNop(opts.Logger)
	dbCfg := db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	if opts.Driver != "" {
		dbCfg.Driver = opts.Driver
	}
	if opts.DSN != "" {
		dbCfg.DSN = opts.DSN
	}
	conn, dialect, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.New(conn, dialect)
	a := &App{
		Config:  cfg,
		DB:      conn,
		Dialect: dialect,
		Repo:    r,
		Engine:  engine.New(r, cfg, logger),
		Logger:  logger,
	}
	if cfg.GitHubEnabled() {
		a.Engine.Repos = github.NewClient(cfg.GitHub.APIBaseURL, logger.Named("github"))
		if cfg.Redis.Addr != "" {
			a.Redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			a.OAuth = github.NewOAuth(cfg.GitHub, github.NewStateStore(a.Redis))
		}
	}
	logger.Debug("workspace opened", zap.String("workspace", opts.Workspace), zap.String("dialect", string(dialect)))
	return a, nil
}

func (a *App) Close() error {
	if a.Redis != nil {
		a.Redis.Close()
	}
	return a.DB.Close()
}
