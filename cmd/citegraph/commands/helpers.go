package commands

import (
	"database/sql"

	"github.com/teranos/citegraph/config"
	"github.com/teranos/citegraph/db"
	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/graph"
	"github.com/teranos/citegraph/logger"
	"github.com/teranos/citegraph/source"
)

// openGraph opens (and bootstraps) the graph database from configuration.
func openGraph(cfg *config.Config) (*graph.Store, *sql.DB, error) {
	conn, err := db.OpenWithMigrations(cfg.GetGraphPath(), logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening graph database")
	}
	return graph.NewStore(conn, logger.Logger), conn, nil
}

// openSource connects the relational source from configuration.
func openSource(cfg *config.Config) (*source.Executor, *sql.DB, error) {
	if cfg.Source.DSN == "" {
		return nil, nil, errors.New("no source configured: set source.dsn or CITEGRAPH_SOURCE_DSN")
	}
	conn, err := source.Open(cfg.Source.Driver, cfg.Source.DSN, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return source.NewExecutor(conn, logger.Logger), conn, nil
}
