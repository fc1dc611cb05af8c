package message

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	v1 "chitchat/shared/contracts/realtime/v1"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id           TEXT PRIMARY KEY,
    sender_id    TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    text         TEXT NOT NULL DEFAULT '',
    media_url    TEXT,
    media_type   TEXT,
    media_size   INTEGER,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_pair_created_idx
    ON messages (sender_id, recipient_id, created_at);
`

// SQLiteStore is a single-file Store for running without Postgres.
// created_at is stored as unix microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrInvalidInput)
	}
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite parent dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNilStore
	}
	return s.db.PingContext(ctx)
}

// Persist inserts a new message row.
func (s *SQLiteStore) Persist(ctx context.Context, in PersistInput) (v1.Message, error) {
	if s == nil || s.db == nil {
		return v1.Message{}, ErrNilStore
	}

	m, err := newRecord(in)
	if err != nil {
		return v1.Message{}, err
	}

	var mediaURL, mediaType, mediaSize any
	if m.Media != nil {
		mediaURL, mediaType, mediaSize = m.Media.URL, m.Media.ContentType, m.Media.Size
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, text, media_url, media_type, media_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.RecipientID, m.Text, mediaURL, mediaType, mediaSize, m.CreatedAt.UnixMicro(),
	); err != nil {
		return v1.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// History returns the newest messages between a and b, oldest first.
func (s *SQLiteStore) History(ctx context.Context, a, b string, q HistoryQuery) ([]v1.Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrNilStore
	}
	if !validPair(a, b) {
		return nil, ErrInvalidInput
	}

	limit := historyLimit(q)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, text, media_url, media_type, media_size, created_at
		   FROM messages
		  WHERE (sender_id = ? AND recipient_id = ?)
		     OR (sender_id = ? AND recipient_id = ?)
		  ORDER BY created_at DESC, id DESC
		  LIMIT ?`,
		a, b, b, a, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]v1.Message, 0, limit)
	for rows.Next() {
		var (
			m         v1.Message
			mediaURL  sql.NullString
			mediaType sql.NullString
			mediaSize sql.NullInt64
			created   int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text, &mediaURL, &mediaType, &mediaSize, &created); err != nil {
			return nil, err
		}
		if mediaURL.Valid && mediaURL.String != "" {
			m.Media = &v1.Media{URL: mediaURL.String, ContentType: mediaType.String, Size: mediaSize.Int64}
		}
		m.CreatedAt = time.UnixMicro(created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}
