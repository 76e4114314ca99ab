// package postgres provides the postgres client shared by the batch
// metrics database and the postgres resource store
package postgres

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"

	"github.com/kava-labs/kava-batch-service/clients/database"
	"github.com/kava-labs/kava-batch-service/logging"
)

var ErrNoDatabase = errors.New("no database configured")

// DatabaseConfig contains values for creating a
// new connection to a postgres database
type DatabaseConfig struct {
	DatabaseName                     string
	DatabaseEndpointURL              string
	DatabaseUsername                 string
	DatabasePassword                 string
	ReadTimeoutSeconds               int64
	DatabaseMaxIdleConnections       int64
	DatabaseConnectionMaxIdleSeconds int64
	DatabaseMaxOpenConnections       int64
	SSLEnabled                       bool
	QueryLoggingEnabled              bool
	// ConnectMaxElapsed bounds how long NewClient waits for the database to accept queries
	ConnectMaxElapsed time.Duration
	Logger            *logging.ServiceLogger
}

// Client wraps a connection to a postgres database
type Client struct {
	db *bun.DB
	*logging.ServiceLogger
}

var _ database.MetricsDatabase = (*Client)(nil)

// NewClient returns a new connection to the specified
// postgres database and error (if any), giving up
// waiting for the database once ctx is done
func NewClient(ctx context.Context, config DatabaseConfig) (*Client, error) {
	if config.DatabaseEndpointURL == "" || config.DatabaseName == "" {
		return nil, ErrNoDatabase
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	options := []pgdriver.Option{
		pgdriver.WithAddr(config.DatabaseEndpointURL),
		pgdriver.WithUser(config.DatabaseUsername),
		pgdriver.WithPassword(config.DatabasePassword),
		pgdriver.WithDatabase(config.DatabaseName),
		pgdriver.WithReadTimeout(time.Second * time.Duration(config.ReadTimeoutSeconds)),
	}

	if config.SSLEnabled {
		options = append(options, pgdriver.WithTLSConfig(&tls.Config{InsecureSkipVerify: false}))
	} else {
		options = append(options, pgdriver.WithInsecure(true))
	}

	connector := pgdriver.NewConnector(options...)

	logger.Debug().
		Str("addr", config.DatabaseEndpointURL).
		Str("database", config.DatabaseName).
		Bool("ssl", config.SSLEnabled).
		Msg("creating database client")

	sqldb := sql.OpenDB(connector)

	// configure connection limits
	// https://go.dev/doc/database/manage-connections#connection_pool_properties
	sqldb.SetMaxIdleConns(int(config.DatabaseMaxIdleConnections))
	sqldb.SetConnMaxIdleTime(time.Second * time.Duration(config.DatabaseConnectionMaxIdleSeconds))
	sqldb.SetMaxOpenConns(int(config.DatabaseMaxOpenConnections))

	db := bun.NewDB(sqldb, pgdialect.New())

	// set up logging on database if requested
	if config.QueryLoggingEnabled {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	client := &Client{
		db:            db,
		ServiceLogger: logger,
	}

	// wait for the database to come up, e.g. when started alongside the service
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = config.ConnectMaxElapsed

	err := backoff.Retry(func() error {
		err := client.HealthCheck()
		if err != nil {
			logger.Debug().Err(err).Msg("database not ready")
		}
		return err
	}, backoff.WithContext(retry, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error %s connecting to database %s", err, config.DatabaseName)
	}

	return client, nil
}

// DB returns the underlying bun database
func (c *Client) DB() *bun.DB {
	return c.db
}

// HealthCheck returns an error if the database can not
// be connected to and queried, nil otherwise
func (c *Client) HealthCheck() error {
	if c.db == nil {
		return ErrNoDatabase
	}

	_, err := c.db.Exec(`SELECT 1;`)
	return err
}

// Migrate runs any migrations not yet applied to the database
func (c *Client) Migrate(ctx context.Context, migrations *migrate.Migrations) (*migrate.MigrationSlice, error) {
	return database.Migrate(ctx, c.db, migrations, c.ServiceLogger)
}

// Close closes the connection pool
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
