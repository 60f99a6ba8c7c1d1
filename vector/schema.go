package vector

import (
	"database/sql"
	"fmt"
	"regexp"
)

// DefaultTable is the documents table used when none is configured.
const DefaultTable = "docs"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const docsSchema = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT,
    meta TEXT,
    embedding BLOB
);
`

// EnsureSchema creates the default documents table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	return EnsureTable(db, DefaultTable)
}

// EnsureTable creates a documents table with the given name if it does not
// already exist.
func EnsureTable(db *sql.DB, table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("vector: invalid table name %q", table)
	}
	_, err := db.Exec(fmt.Sprintf(docsSchema, table))
	return err
}
