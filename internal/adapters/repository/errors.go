package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrEmptyDSN          = errors.New("empty database dsn")
	ErrInvalidRecord     = errors.New("invalid historical record")
)
