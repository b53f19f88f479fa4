// Package migrations embeds the evbridge SQL schema into the binary.
package migrations

import "embed"

// FS holds the migration files at its root, ready for database.Migrate.
//
//go:embed *.sql
var FS embed.FS
