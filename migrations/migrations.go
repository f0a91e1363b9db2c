// Package migrations embeds the schema of the allow-list store, one
// directory per database driver.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite3/*.sql.
//
//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS
