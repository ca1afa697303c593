// Package migrations embeds the goose SQL migrations for the archival
// queue schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
