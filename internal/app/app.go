// Package app wires configuration, logging and storage for the commands.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"novelrank/internal/refresh"
	"novelrank/internal/scraper"
	"novelrank/internal/snapshot"
	"novelrank/pkg/database"
	"novelrank/pkg/logger"
	"novelrank/pkg/utils"
)

type App struct {
	Config utils.Config
	Log    *zap.Logger
	DB     *sql.DB
	Store  *snapshot.Store

	logCloser io.Closer
}

// Open loads config from dir, builds the logger and opens the migrated
// snapshot database.
func Open(dir string) (*App, error) {
	cfg, err := utils.LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	log, closer := logger.New(cfg.Log.Level, cfg.Log.Output, cfg.Log.File)

	dbCfg := database.DefaultConfig()
	if cfg.Database.Path != "" {
		dbCfg.Path = cfg.Database.Path
	}
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open database %s: %w", dbCfg.Path, err)
	}
	log.Debug("database ready", zap.String("path", dbCfg.Path))

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Store:     snapshot.NewStore(db, cfg.Scrape.Location(), log),
		logCloser: closer,
	}, nil
}

// ScraperOptions maps the scrape section onto adapter options.
func (a *App) ScraperOptions() scraper.Options {
	return scraper.Options{
		Timeout:   a.Config.Scrape.Timeout,
		Delay:     a.Config.Scrape.Delay,
		UserAgent: a.Config.Scrape.UserAgent,
		Logger:    a.Log,
	}
}

// Adapters returns every registered adapter, in registry order.
func (a *App) Adapters() []scraper.Adapter {
	return scraper.All(a.ScraperOptions())
}

// Adapter returns one adapter by key, or the configured default for "".
func (a *App) Adapter(key string) (scraper.Adapter, error) {
	if key == "" {
		key = a.Config.Scrape.DefaultSource
	}
	return scraper.New(key, a.ScraperOptions())
}

// Runner builds a refresh runner over every adapter.
func (a *App) Runner(notifiers ...refresh.Notifier) *refresh.Runner {
	return refresh.NewRunner(a.Store, a.Adapters(), a.Log, notifiers...)
}

func (a *App) Close() error {
	_ = a.Log.Sync()
	return errors.Join(a.DB.Close(), a.logCloser.Close())
}
