package source

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // production source driver
	_ "github.com/mattn/go-sqlite3"    // local/testing source driver
	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/sym"
)

// pingTimeout bounds the reachability check at open time.
const pingTimeout = 10 * time.Second

// Open connects to the relational source and verifies reachability.
// Supported drivers: "pgx" (production warehouse) and "sqlite3" (local runs
// and tests). An unreachable source wraps ErrSourceConnection — fatal, the
// pipeline aborts before any stage runs.
func Open(driver, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	switch driver {
	case "pgx", "sqlite3":
	default:
		return nil, errors.Newf("unsupported source driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSourceConnection, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrSourceConnection, err.Error())
	}

	// One logical task per run: a single connection keeps statement order
	// and temp-table visibility deterministic.
	db.SetMaxOpenConns(1)

	if logger != nil {
		logger.Infow("Source connected",
			"symbol", sym.Source,
			"driver", driver)
	}

	return db, nil
}
