// Package migrations carries the SQLite schema. Importing it for side
// effects hands the embedded files to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() { database.RegisterSchema(files, ".") }
