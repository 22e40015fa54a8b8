// Package storyvault wires the StoryVault service: both store
// backends, the per-entity repositories, the migration phase
// controller, the divergence journal, and the HTTP API.
package storyvault

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"gorm.io/gorm"

	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/models"
	"github.com/mystira/storyvault/pkg/reconcile"
	"github.com/mystira/storyvault/pkg/retry"
	"github.com/mystira/storyvault/pkg/store"
	"github.com/mystira/storyvault/pkg/store/dualwrite"
	"github.com/mystira/storyvault/pkg/store/postgres"
	"github.com/mystira/storyvault/pkg/store/repository"
	"github.com/mystira/storyvault/pkg/store/surreal"
	"github.com/mystira/storyvault/pkg/store/validate"
)

// App is the assembled service.
type App struct {
	config *Config
	logger *slog.Logger

	phases   *migration.Controller
	stories  *repository.Repository[models.Story, *models.Story]
	accounts *repository.Repository[models.Account, *models.Account]
	runner   *validate.Runner

	storySecondary   store.Store[models.Story, *models.Story]
	accountSecondary store.Store[models.Account, *models.Account]

	journal   *reconcile.Journal
	surrealDB *surrealdb.DB
	gormDB    *gorm.DB
}

// setupLogger builds the process logger from config. Unknown levels
// fall back to info.
func setupLogger(cfg LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// NewApp connects to the stores the configured phase needs and wires
// the repositories. Both stores are connected whenever configured so
// consistency validation can compare them even in single-store phases.
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	a := &App{
		config: cfg,
		logger: logger,
		phases: migration.NewController(cfg.Migration.Phase),
	}

	var (
		storyPrimary     store.Store[models.Story, *models.Story]
		accountPrimary   store.Store[models.Account, *models.Account]
		storySecondary   store.Store[models.Story, *models.Story]
		accountSecondary store.Store[models.Account, *models.Account]
	)

	if cfg.Surreal.URL != "" {
		db, err := surreal.Connect(ctx, cfg.Surreal.URL, cfg.Surreal.Namespace,
			cfg.Surreal.Database, cfg.Surreal.Username, cfg.Surreal.Password)
		if err != nil {
			return nil, err
		}
		a.surrealDB = db
		storyPrimary = surreal.New[models.Story, *models.Story](db)
		accountPrimary = surreal.New[models.Account, *models.Account](db)
		logger.Info("connected to document store", "url", cfg.Surreal.URL)
	}

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Connect(cfg.Postgres.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.gormDB = db
		storySecondary = postgres.New[models.Story, *models.Story](db)
		accountSecondary = postgres.New[models.Account, *models.Account](db)
		logger.Info("connected to relational store")
	}

	var sink reconcile.Sink = &reconcile.LogSink{Logger: logger.With("component", "reconcile")}
	if cfg.Migration.JournalPath != "" {
		journal, err := reconcile.OpenJournal(cfg.Migration.JournalPath,
			logger.With("component", "journal"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = journal
		sink = reconcile.MultiSink{journal, sink}
	}

	a.wire(storyPrimary, storySecondary, accountPrimary, accountSecondary, sink)
	return a, nil
}

// NewAppWithStores wires an App on preconnected stores. Tests use this
// to run the full HTTP surface against in-memory backends.
func NewAppWithStores(
	cfg *Config,
	logger *slog.Logger,
	storyPrimary, storySecondary store.Store[models.Story, *models.Story],
	accountPrimary, accountSecondary store.Store[models.Account, *models.Account],
	sink reconcile.Sink,
) *App {
	a := &App{
		config: cfg,
		logger: logger,
		phases: migration.NewController(cfg.Migration.Phase),
	}
	a.wire(storyPrimary, storySecondary, accountPrimary, accountSecondary, sink)
	return a
}

func (a *App) wire(
	storyPrimary, storySecondary store.Store[models.Story, *models.Story],
	accountPrimary, accountSecondary store.Store[models.Account, *models.Account],
	sink reconcile.Sink,
) {
	cfg := a.config
	opts := repository.Options{
		Options: dualwrite.Options{
			Timeout: cfg.Migration.WriteTimeout,
			Retry: retry.Policy{
				MaxAttempts: cfg.Migration.RetryAttempts,
				BaseDelay:   cfg.Migration.RetryBaseDelay,
				MaxDelay:    2 * time.Second,
				Retryable:   store.IsTransient,
			},
			BreakerThreshold:    cfg.Migration.BreakerThreshold,
			BreakerCooldown:     cfg.Migration.BreakerCooldown,
			DisableCompensation: !cfg.Migration.EnableCompensation,
		},
		CacheTTL:  cfg.Migration.CacheTTL,
		CacheSize: cfg.Migration.CacheSize,
	}

	a.storySecondary = storySecondary
	a.accountSecondary = accountSecondary

	a.stories = repository.New(storyPrimary, storySecondary, a.phases, sink,
		a.logger.With("component", "stories"), opts)
	a.accounts = repository.New(accountPrimary, accountSecondary, a.phases, sink,
		a.logger.With("component", "accounts"), opts)

	// Sweepers only for entity types with both stores connected: a
	// single-store configuration has nothing to compare against.
	var sweepers []validate.Sweeper
	if cfg.Migration.EnableConsistencyValidation {
		if storyPrimary != nil && storySecondary != nil {
			sweepers = append(sweepers, validate.NewSweep(a.stories.Validator()))
		}
		if accountPrimary != nil && accountSecondary != nil {
			sweepers = append(sweepers, validate.NewSweep(a.accounts.Validator()))
		}
	}
	if len(sweepers) == 0 {
		a.logger.Info("consistency sweep disabled",
			"enabled", cfg.Migration.EnableConsistencyValidation)
	}
	a.runner = validate.NewRunner(
		cfg.Migration.SweepInterval,
		cfg.Migration.SweepWindow,
		a.logger.With("component", "validator"),
		sweepers...,
	)
}

// Stories returns the story repository.
func (a *App) Stories() *repository.Repository[models.Story, *models.Story] {
	return a.stories
}

// Accounts returns the account repository.
func (a *App) Accounts() *repository.Repository[models.Account, *models.Account] {
	return a.accounts
}

// Phases returns the migration phase controller.
func (a *App) Phases() *migration.Controller { return a.phases }

// Migrate prepares the relational schema for both tables. The document
// store creates tables on first insert and needs nothing here.
func (a *App) Migrate(ctx context.Context) error {
	if a.gormDB == nil {
		return fmt.Errorf("migrate requires a PostgreSQL connection")
	}
	if err := postgres.New[models.Account, *models.Account](a.gormDB).Migrate(ctx); err != nil {
		return err
	}
	if err := postgres.New[models.Story, *models.Story](a.gormDB).Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("relational schema migrated")
	return nil
}

// Close releases every resource the App owns. Safe on a partially
// constructed App.
func (a *App) Close() {
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.stories != nil {
		a.stories.Close()
	}
	if a.accounts != nil {
		a.accounts.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Error("closing journal", "error", err)
		}
	}
	if a.surrealDB != nil {
		if err := a.surrealDB.Close(context.Background()); err != nil {
			a.logger.Error("closing document store", "error", err)
		}
	}
	if a.gormDB != nil {
		if err := postgres.ClosePool(a.gormDB); err != nil {
			a.logger.Error("closing relational store", "error", err)
		}
	}
}
