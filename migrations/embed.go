// Package migrations embeds the ledger schema.
package migrations

import "embed"

// FS holds the versioned up/down scripts applied by platform/db.Migrate.
//
//go:embed *.sql
var FS embed.FS
