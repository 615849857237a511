package migrations

import "embed"

//go:embed sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"
