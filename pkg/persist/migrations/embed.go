// Package migrations embeds the SQL migrations for the sqlite state store so
// goose can apply them without a filesystem path at runtime.
package migrations

import "embed"

// FS holds all *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
