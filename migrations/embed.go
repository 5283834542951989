// Package migrations embeds the collector's SQL schema into the binary.
//
// Import it for side effects before calling (*database.DB).Migrate.
package migrations

import (
	"embed"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
