// Package server initializes and runs the archival server. It wires the
// queue engine to Postgres, the content store to the S3 backend, the
// signing manager to its key directory, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/logging"
	"github.com/dmitrijs2005/streamvault/internal/server/archive"
	"github.com/dmitrijs2005/streamvault/internal/server/config"
	"github.com/dmitrijs2005/streamvault/internal/server/contentstore"
	"github.com/dmitrijs2005/streamvault/internal/server/ledger"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/streamvault/internal/server/signing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  *contentstore.Store
	signer *signing.Manager
	engine *archive.Engine
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()

	backend, err := contentstore.NewS3Backend(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("object storage init error: %w", err)
	}
	store := contentstore.NewStore(backend, logger)

	lc := ledger.NewHTTPClient(c.LedgerGatewayURL, c.LedgerTimeout)

	identities, err := signing.LoadIdentities(c.SigningKeyDir)
	if err != nil {
		return nil, fmt.Errorf("signing key load error: %w", err)
	}
	signer := signing.NewManager(identities, lc, signing.Thresholds{
		MinBalance:    c.MinIdentityBalance,
		LowWatermark:  c.LowBalanceWatermark,
		SpendEstimate: c.SpendEstimate,
	}, logger)

	engine := archive.NewEngine(db, repos, lc, signer, c, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		repos:  repos,
		store:  store,
		signer: signer,
		engine: engine,
	}, nil
}

// Engine exposes the archival queue to the upload path.
func (app *App) Engine() *archive.Engine { return app.engine }

// Store exposes the content-addressed blob store to the upload path.
func (app *App) Store() *contentstore.Store { return app.store }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startEngine(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.engine.Run(ctx); err != nil && ctx.Err() == nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(app.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := app.store.Cleanup(ctx, app.config.BlobRetention)
			if err != nil {
				app.logger.Error(ctx, "blob cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				app.logger.Info(ctx, "blob cleanup finished", "removed", removed)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	// Warm the balance cache so the first drain cycle does not have to.
	app.signer.RefreshBalances(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startEngine(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startCleanupLoop(ctx)
	}()

	wg.Wait()

	return app.db.Close()
}
