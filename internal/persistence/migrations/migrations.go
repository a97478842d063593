// Package migrations embeds the SQL files goose applies on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
