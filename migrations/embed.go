// Package migrations embeds the SQL migrations for the postgres settings backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
