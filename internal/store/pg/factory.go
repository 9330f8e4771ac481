// Package pg implements the Store's persistence on PostgreSQL (managed
// mode) through the pgx stdlib driver. Schema changes ship as
// golang-migrate files under migrations/; the serve command refuses to run
// against an outdated schema.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/trinsiklabs/onelist/internal/store"
)

// NewStores connects to Postgres and returns the full store container.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	entries := &EntryStore{db: db, appendLocks: store.NewKeyedMutex()}
	return &store.Stores{
		Owners:        &OwnerStore{db: db},
		Entries:       entries,
		Memories:      &MemoryStore{db: db},
		Chain:         &ChainStore{db: db},
		Relationships: &RelationshipStore{db: db},
		Tasks:         &TaskStore{db: db},
		Search:        &SearchStore{db: db},
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// placeholders renders $start..$start+n-1 for IN lists.
func placeholders(n, start int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
