package message

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL. Schema lives in migrations/.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "chitchat").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("message: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("message: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "chitchat",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("message: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Persist inserts a new message row.
func (s *PostgresStore) Persist(ctx context.Context, in PersistInput) (v1.Message, error) {
	if s == nil || s.pool == nil {
		return v1.Message{}, ErrNilStore
	}
	if err := ctx.Err(); err != nil {
		return v1.Message{}, err
	}

	m, err := newRecord(in)
	if err != nil {
		return v1.Message{}, err
	}

	var (
		mediaURL, mediaType *string
		mediaSize           *int64
	)
	if m.Media != nil {
		mediaURL, mediaType, mediaSize = &m.Media.URL, &m.Media.ContentType, &m.Media.Size
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "messages")+` (
		     id, sender_id, recipient_id, text, media_url, media_type, media_size, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.SenderID, m.RecipientID, m.Text, mediaURL, mediaType, mediaSize, m.CreatedAt,
	); err != nil {
		return v1.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// History returns the newest messages between a and b, oldest first.
func (s *PostgresStore) History(ctx context.Context, a, b string, q HistoryQuery) ([]v1.Message, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNilStore
	}
	if !validPair(a, b) {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := historyLimit(q)

	rows, err := s.pool.Query(ctx, s.historySQL(), a, b, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]v1.Message, 0, limit)
	for rows.Next() {
		var (
			m                   v1.Message
			mediaURL, mediaType *string
			mediaSize           *int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text, &mediaURL, &mediaType, &mediaSize, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Media = mediaFromColumns(mediaURL, mediaType, mediaSize)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}

func mediaFromColumns(url, contentType *string, size *int64) *v1.Media {
	if url == nil || *url == "" {
		return nil
	}
	m := &v1.Media{URL: *url}
	if contentType != nil {
		m.ContentType = *contentType
	}
	if size != nil {
		m.Size = *size
	}
	return m
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

// historySQL matches the unordered pair the way messages_pair_created_idx is keyed,
// so the planner can walk the index in order instead of filtering both directions.
func (s *PostgresStore) historySQL() string {
	return `SELECT id, sender_id, recipient_id, text, media_url, media_type, media_size, created_at
	   FROM ` + pgIdent(s.schema, "messages") + `
	  WHERE LEAST(sender_id, recipient_id) = LEAST($1::text, $2::text)
	    AND GREATEST(sender_id, recipient_id) = GREATEST($1::text, $2::text)
	  ORDER BY created_at DESC, id DESC
	  LIMIT $3`
}
