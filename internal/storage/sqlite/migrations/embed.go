// Package migrations holds the schema of the event journal.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
