package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MariaDB stores documents in the `documents` table created by
// db/migrations. Bodies are JSON; filters are evaluated with JSON_EXTRACT and
// ordering uses the created_at column.
type MariaDB struct {
	db    *sql.DB
	clock func() time.Time
}

// NewMariaDB creates a MariaDB-backed store on an open connection pool.
func NewMariaDB(db *sql.DB) *MariaDB {
	return &MariaDB{db: db, clock: time.Now}
}

// Get implements Store.
func (s *MariaDB) Get(ctx context.Context, collection, id string, dst any) error {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	return nil
}

// Set implements Store. ON DUPLICATE KEY keeps the original created_at.
func (s *MariaDB) Set(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}
	now := s.clock().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`,
		collection, id, body, now, now,
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update implements Store. The read-merge-write runs in a transaction with
// the row locked so concurrent merges of different fields do not clobber
// each other.
func (s *MariaDB) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting update of %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ? FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading %s/%s for update: %w", collection, id, err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	if body == nil {
		body = map[string]json.RawMessage{}
	}
	if err := mergeFields(body, fields); err != nil {
		return err
	}
	merged, err := json.Marshal(body)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		merged, s.clock().UTC(), collection, id,
	); err != nil {
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}

	return tx.Commit()
}

// Delete implements Store.
func (s *MariaDB) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query implements Store.
func (s *MariaDB) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	query, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var body []byte
		if err := rows.Scan(&d.ID, &body, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", collection, err)
		}
		d.Data = body
		out = append(out, d)
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *MariaDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildSelect renders the SQL for a Query. Field names are validated
// identifiers and passed as JSON paths through placeholders; values are
// compared as unquoted text, which matches strings, numbers and booleans.
func buildSelect(collection string, q Query) (string, []any, error) {
	if err := validateQuery(q); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, body, created_at FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		b.WriteString(` AND JSON_UNQUOTE(JSON_EXTRACT(body, ?)) = ?`)
		args = append(args, "$."+f.Field, scalarText(f.Value))
	}

	if q.Newest {
		b.WriteString(` ORDER BY created_at DESC, id DESC`)
	} else {
		b.WriteString(` ORDER BY created_at ASC, id ASC`)
	}

	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	return b.String(), args, nil
}

// scalarText renders a filter value the way JSON_UNQUOTE prints it.
func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return strings.Trim(string(raw), `"`)
	}
}
