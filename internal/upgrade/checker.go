// Package upgrade guards managed-mode startup: the serve command refuses
// to run against a schema it does not understand, and Go data hooks run
// after SQL migrations for transformations SQL alone cannot express.
package upgrade

import (
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migration version this binary expects.
// Bump alongside new files under migrations/.
const RequiredSchemaVersion uint = 1

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// SchemaStatus is the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

// CheckSchema reads golang-migrate's schema_migrations table and compares
// against RequiredSchemaVersion. A missing table means a fresh database.
func CheckSchema(db *sql.DB) (*SchemaStatus, error) {
	var version uint
	var dirty bool

	err := db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		// No rows or no table: fresh database, needs migration.
		return &SchemaStatus{RequiredVersion: RequiredSchemaVersion, NeedsMigration: true}, nil
	}

	s := &SchemaStatus{
		CurrentVersion:  version,
		RequiredVersion: RequiredSchemaVersion,
		Dirty:           dirty,
	}
	if dirty {
		return s, nil
	}

	switch {
	case version == RequiredSchemaVersion:
		s.Compatible = true
	case version < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s, nil
}

// Err converts an incompatible status into the matching sentinel.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.Compatible:
		return nil
	case s.NeedsMigration:
		return ErrSchemaOutdated
	default:
		return ErrSchemaAhead
	}
}

// FormatError renders operator guidance for an incompatible status.
func (s *SchemaStatus) FormatError() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf(
			"Database schema is dirty at version %d (a migration failed partway).\n"+
				"  Fix:  onelist migrate force %d\n"+
				"  Then: onelist migrate up\n",
			s.CurrentVersion, s.CurrentVersion-1)
	case s.NeedsMigration:
		return fmt.Sprintf(
			"Database schema v%d is behind this binary (requires v%d).\n"+
				"  Run: onelist migrate up\n",
			s.CurrentVersion, s.RequiredVersion)
	default:
		return fmt.Sprintf(
			"Database schema v%d is newer than this binary (requires v%d).\n"+
				"  Upgrade the onelist binary.\n",
			s.CurrentVersion, s.RequiredVersion)
	}
}
