package repository

import "time"

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithMaxOpenConns caps the connection pool. It is ignored for sqlite3,
// which always uses a single connection.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime sets the maximum connection lifetime for pooled drivers.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}
