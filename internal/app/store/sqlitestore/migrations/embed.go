// Package migrations holds the embedded SQL schema for the SQLite identity store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
