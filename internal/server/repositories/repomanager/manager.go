package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/streamvault/internal/dbx"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/archived"
	"github.com/dmitrijs2005/streamvault/internal/server/repositories/queueitems"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	QueueItems(db dbx.DBTX) queueitems.Repository
	Archived(db dbx.DBTX) archived.Repository
}
