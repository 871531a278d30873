package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the documents table; applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection  text        NOT NULL,
    id          text        NOT NULL,
    body        jsonb       NOT NULL,
    seq         bigserial,
    created_at  timestamptz NOT NULL DEFAULT now(),
    updated_at  timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING gin (body jsonb_path_ops);
CREATE INDEX IF NOT EXISTS documents_order_idx ON documents (collection, created_at, seq);
`

// PostgresStore keeps every document as one JSONB row. Each primitive is a
// single UPDATE statement, so it is atomic per document.
type PostgresStore struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
}

// NewPostgresStore creates a store backed by Postgres.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate creates the documents table and indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return wrapErr(err)
}

func (s *PostgresStore) Insert(ctx context.Context, coll, id string, doc any) error {
	body, err := toMap(doc)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := now
	if raw, ok := body["createdAt"].(string); ok && raw != zeroTimeJSON {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			created = t
		}
	}
	body["id"] = id
	body["createdAt"] = created
	body["updatedAt"] = now
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	const q = `INSERT INTO documents (collection, id, body, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, q, coll, id, b, created, now)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return wrapErr(err)
}

func (s *PostgresStore) Get(ctx context.Context, coll, id string, dest any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`, coll, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrapErr(err)
	}
	return json.Unmarshal(raw, dest)
}

func (s *PostgresStore) Set(ctx context.Context, coll, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return s.update(ctx, coll, id, `body || $3::jsonb`, patch)
}

func (s *PostgresStore) Delete(ctx context.Context, coll, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll, id)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Find(ctx context.Context, coll string, q Query, dest any) error {
	b, err := s.where(s.psql.Select("body").From("documents"), coll, q)
	if err != nil {
		return err
	}
	if q.Sort.Field != "" {
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		b = b.OrderByClause("COALESCE((body->>?::text)::numeric, 0) "+dir, q.Sort.Field).
			OrderBy("created_at DESC", "seq DESC")
	} else if q.Sort.Desc {
		b = b.OrderBy("created_at DESC", "seq DESC")
	} else {
		b = b.OrderBy("created_at ASC", "seq ASC")
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}

	sqlStr, args, err := b.ToSql()
	if err != nil {
		return err
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return wrapErr(err)
	}
	defer rows.Close()

	var buf strings.Builder
	buf.WriteByte('[')
	n := 0
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return wrapErr(err)
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
		n++
	}
	if err := rows.Err(); err != nil {
		return wrapErr(err)
	}
	buf.WriteByte(']')
	return json.Unmarshal([]byte(buf.String()), dest)
}

func (s *PostgresStore) Count(ctx context.Context, coll string, q Query) (int, error) {
	b, err := s.where(s.psql.Select("count(*)").From("documents"), coll, q)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

func (s *PostgresStore) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	return s.update(ctx, coll, id,
		`jsonb_set(body, ARRAY[$3::text], to_jsonb(COALESCE((body->>$3::text)::numeric, 0) + $4::bigint))`,
		field, delta)
}

const arrayOf = `(CASE WHEN jsonb_typeof(body->$3::text) = 'array' THEN body->$3::text ELSE '[]'::jsonb END)`

func (s *PostgresStore) Push(ctx context.Context, coll, id, field string, value any) error {
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.update(ctx, coll, id,
		`jsonb_set(body, ARRAY[$3::text], `+arrayOf+` || jsonb_build_array($4::jsonb))`,
		field, v)
}

func (s *PostgresStore) Pull(ctx context.Context, coll, id, field string, value any) error {
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.update(ctx, coll, id,
		`jsonb_set(body, ARRAY[$3::text], (
		    SELECT COALESCE(jsonb_agg(t.e ORDER BY t.i), '[]'::jsonb)
		    FROM jsonb_array_elements(`+arrayOf+`) WITH ORDINALITY AS t(e, i)
		    WHERE t.e <> $4::jsonb))`,
		field, v)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return wrapErr(s.pool.Ping(ctx))
}

// update applies "body = <expr>" to one document and refreshes updatedAt.
// expr may reference $3.. which are bound from args.
func (s *PostgresStore) update(ctx context.Context, coll, id, expr string, args ...any) error {
	now := time.Now().UTC()
	stamp, _ := json.Marshal(now)
	n := len(args) + 3
	q := fmt.Sprintf(`UPDATE documents
	    SET body = jsonb_set(%s, '{updatedAt}', $%d::jsonb), updated_at = $%d
	    WHERE collection = $1 AND id = $2`, expr, n, n+1)

	all := append([]any{coll, id}, args...)
	all = append(all, stamp, now)
	tag, err := s.pool.Exec(ctx, q, all...)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) where(b sq.SelectBuilder, coll string, q Query) (sq.SelectBuilder, error) {
	b = b.Where(sq.Eq{"collection": coll})
	for _, f := range q.Filters {
		expr, err := filterSQL(f)
		if err != nil {
			return b, err
		}
		b = b.Where(expr)
	}
	if len(q.Any) > 0 {
		or := sq.Or{}
		for _, f := range q.Any {
			expr, err := filterSQL(f)
			if err != nil {
				return b, err
			}
			or = append(or, expr)
		}
		b = b.Where(or)
	}
	return b, nil
}

func filterSQL(f Filter) (sq.Sqlizer, error) {
	switch f.Op {
	case Eq:
		if f.Value == nil {
			return sq.Expr(`(body->?::text IS NULL OR body->?::text = 'null'::jsonb)`, f.Field, f.Field), nil
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		return sq.Expr(`body->?::text = ?::jsonb`, f.Field, string(v)), nil
	case Has:
		v, err := json.Marshal([]any{f.Value})
		if err != nil {
			return nil, err
		}
		return sq.Expr(`body->?::text @> ?::jsonb`, f.Field, string(v)), nil
	case Like:
		return sq.Expr(`body->>?::text ILIKE ?`, f.Field, "%"+escapeLike(fmt.Sprint(f.Value))+"%"), nil
	}
	return nil, fmt.Errorf("docstore: unsupported filter op %d", f.Op)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// wrapErr tags connection-level and retry-safe errors with ErrUnavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
