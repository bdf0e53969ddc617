// Package migrations embeds the journal's SQL migration files into the binary.
//
// Pass FS to database.DB.Migrate; the files sit at the root of the FS.
package migrations

import "embed"

// FS holds every *.sql migration file.
//
//go:embed *.sql
var FS embed.FS
