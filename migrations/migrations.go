// Package migrations embeds the ledger schema migrations.
package migrations

import "embed"

// FS holds the numbered golang-migrate up/down scripts.
//
//go:embed *.sql
var FS embed.FS
