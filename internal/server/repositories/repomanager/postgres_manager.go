package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/streamvault/internal/dbx"
	"github.com/dmitrijs2005/streamvault/internal/server/migrations"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/archived"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/queueitems"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
}

func (m *PostgresRepositoryManager) QueueItems(db dbx.DBTX) queueitems.Repository {
	return queueitems.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Archived(db dbx.DBTX) archived.Repository {
	return archived.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
