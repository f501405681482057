// Package migrations embeds the schema files so the migrate command can
// apply them without a filesystem dependency at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
