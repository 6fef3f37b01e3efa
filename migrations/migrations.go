// Package migrations embeds the preference store schema for each SQL driver.
package migrations

import "embed"

// Embedded migration files bundled at compile time so the envboot binary
// can migrate a fresh database without shipping SQL alongside it.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
