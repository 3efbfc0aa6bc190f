package registry

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"QChat/logger"
)

// PostgresRegistry keeps the mappings in a shared connections table:
//
//	CREATE TABLE IF NOT EXISTS socket_connections (
//	    session_id text NOT NULL,
//	    server_id  text NOT NULL,
//	    identity   text NOT NULL,
//	    PRIMARY KEY (session_id, server_id)
//	);
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRegistry{pool: pool}, nil
}

func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

func (r *PostgresRegistry) Persist(ctx context.Context, sessionID, identity, serverID string) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO socket_connections (session_id, server_id, identity) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, server_id) DO UPDATE SET identity = EXCLUDED.identity`,
		sessionID, serverID, identity,
	)
	if err != nil {
		logger.Errorf("error while persisting socket connection to postgres: %v", err)
	}
}

func (r *PostgresRegistry) Remove(ctx context.Context, sessionID, serverID string) {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM socket_connections WHERE session_id = $1 AND server_id = $2`,
		sessionID, serverID,
	)
	if err != nil {
		logger.Errorf("error while removing socket connection from postgres: %v", err)
	}
}

func (r *PostgresRegistry) Resolve(ctx context.Context, sessionID, serverID string) string {
	var identity string
	err := r.pool.QueryRow(ctx,
		`SELECT identity FROM socket_connections WHERE session_id = $1 AND server_id = $2`,
		sessionID, serverID,
	).Scan(&identity)
	if err != nil {
		if err != pgx.ErrNoRows {
			logger.Errorf("error getting connection details from postgres: %v", err)
		}
		return ""
	}
	return identity
}
