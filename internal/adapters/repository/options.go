package repository

import "time"

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithQueryTimeout bounds each statement.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *PostgresStore) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithSchemaSetup controls whether NewPostgresStore creates the submissions
// table when it is missing.
func WithSchemaSetup(enabled bool) Option {
	return func(s *PostgresStore) {
		s.setupSchema = enabled
	}
}
