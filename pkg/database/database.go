package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// PoolConfig bounds the relational connection pool.
type PoolConfig struct {
	Min             int
	Max             int
	AcquireTimeout  time.Duration
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig mirrors a min 1 / max 10 pool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Min:             1,
		Max:             10,
		AcquireTimeout:  5 * time.Second,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// OpenSQL prepares a pooled handle without touching the network. Liveness is
// checked separately so an unreachable store can be reported as a failed run.
func OpenSQL(d *Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", d.Name)
	}

	if pool.Max > 0 {
		db.SetMaxOpenConns(pool.Max)
	}
	if pool.Min > 0 {
		db.SetMaxIdleConns(pool.Min)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}

// ConnectSQL opens the pool and fails unless the store answers a ping.
func ConnectSQL(d *Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := OpenSQL(d, dsn, pool)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connecting to %s database (ping failed)", d.Name)
	}

	logger.Infof("Successfully connected to %s", d.Name)
	return db, nil
}

// ConnectMongo creates a client without waiting for the server; liveness is
// checked by the caller so an unreachable server fails the run, not startup.
func ConnectMongo(connString string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, errors.Wrap(err, "creating MongoDB client")
	}
	return client, nil
}

// PingMongo fails unless the primary answers.
func PingMongo(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "connecting to MongoDB (ping failed)")
	}
	return nil
}
