package store

import "errors"

var (
	ErrUnknownDriver        = errors.New("store: unknown driver")
	ErrUnsupportedStatement = errors.New("store: unsupported statement")
	ErrNoSuchTable          = errors.New("store: no such table")
)
