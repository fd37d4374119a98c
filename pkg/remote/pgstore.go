package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// sqlstateUndefinedTable is raised when a category has no table.
const sqlstateUndefinedTable = "42P01"

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Querier is the subset of pgx used by PGStore. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx all satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads configuration from PostgreSQL. Each category is a table
// whose rows are keyed by a "name" column; a field value is the whole row
// as a JSON object.
type PGStore struct {
	db     Querier
	schema string
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store over db. An empty schema uses the search path.
func NewPGStore(db Querier, schema string) *PGStore {
	return &PGStore{db: db, schema: schema}
}

// FetchDirect implements Store.
func (s *PGStore) FetchDirect(ctx context.Context, category, field string) (json.RawMessage, error) {
	table, err := s.table(category)
	if err != nil {
		return nil, err
	}

	var (
		query string
		args  []any
	)
	if field == "" {
		query = "SELECT jsonb_object_agg(t.name, to_jsonb(t)) FROM " + table + " t"
	} else {
		query = "SELECT to_jsonb(t) FROM " + table + " t WHERE t.name = $1 LIMIT 1"
		args = append(args, field)
	}

	var raw []byte
	if err := s.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, joinName(category, field))
		}
		return nil, fmt.Errorf("query %s: %w", joinName(category, field), err)
	}

	// jsonb_object_agg over no rows yields NULL.
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, joinName(category, field))
	}
	return json.RawMessage(raw), nil
}

func (s *PGStore) table(category string) (string, error) {
	if !identifierPattern.MatchString(category) {
		return "", fmt.Errorf("invalid category name %q", category)
	}
	if s.schema == "" {
		return pgx.Identifier{category}.Sanitize(), nil
	}
	if !identifierPattern.MatchString(s.schema) {
		return "", fmt.Errorf("invalid schema name %q", s.schema)
	}
	return pgx.Identifier{s.schema, category}.Sanitize(), nil
}

func isNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUndefinedTable
}

func joinName(category, field string) string {
	if field == "" {
		return category
	}
	return category + ":" + field
}
