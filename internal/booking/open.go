package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-house-booking/internal/postgres"
)

// MemoryDSN selects the in-process store instead of Postgres.
const MemoryDSN = "memory://"

// Open returns the store behind dsn and a close func. Postgres schemas are
// migrated on open.
func Open(ctx context.Context, dsn string) (Store, func(), error) {
	if strings.HasPrefix(dsn, MemoryDSN) {
		return NewMemStore(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}
	return &Repo{DB: db}, db.Close, nil
}
