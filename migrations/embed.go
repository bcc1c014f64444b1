// Package migrations embeds the SQL schema migration files.
package migrations

import "embed"

// FS holds the embedded SQL migration files applied at startup.
//
//go:embed *.sql
var FS embed.FS
