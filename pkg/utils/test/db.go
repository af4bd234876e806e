package testutils

import (
	"context"

	"github.com/papercomputeco/swarm/pkg/logger"
	"github.com/papercomputeco/swarm/pkg/schema"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/storage/sqlite"
)

// NewSQLiteDB opens an in-memory SQLite database with the full swarm schema.
func NewSQLiteDB(ctx context.Context) (*storage.DB, schema.Capabilities, error) {
	db, err := sqlite.NewDB(ctx, ":memory:")
	if err != nil {
		return nil, schema.Capabilities{}, err
	}

	caps, err := schema.NewManager(db, logger.Nop()).Ensure(ctx)
	if err != nil {
		db.Close()
		return nil, schema.Capabilities{}, err
	}

	return db, caps, nil
}
