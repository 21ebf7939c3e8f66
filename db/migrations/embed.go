// Package dbmigrations exposes embedded SQL migrations for marketdata binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into marketdata binaries.
//
//go:embed *.sql
var Files embed.FS
