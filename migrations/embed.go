// Package migrations embeds SQL migration files into the binary, so the
// server can migrate its schema without the SQL files present on the
// filesystem.
package migrations

import (
	"embed"

	"github.com/hallmont/identity-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package. The embed
	// directive above captures all .sql files in this directory.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
