package upgrade

import (
	"context"
	"database/sql"
)

// Data hooks live here. Register one when a schema migration needs a
// Go-side transformation that SQL alone cannot express.

func init() {
	RegisterDataHook(1, "001_seed_default_owner", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO owners (id, trusted_memory) VALUES ('default', FALSE)
			ON CONFLICT (id) DO NOTHING`)
		return err
	})
}
