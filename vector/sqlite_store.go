package vector

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteStore implements Store over a SQLite documents table. It is the
// durable source of the points a cover tree is built from; the tree itself is
// rebuilt in memory on every load.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore creates a new SQLite-backed Store over the default docs
// table, ensuring the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	return NewSQLiteStoreWithTable(db, DefaultTable)
}

// NewSQLiteStoreWithTable creates a Store over the named documents table,
// ensuring the schema exists.
func NewSQLiteStoreWithTable(db *sql.DB, table string) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := EnsureTable(db, table); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, table: table}, nil
}

// AddDocuments inserts documents in a single transaction. Document.ID must be
// non-empty.
func (s *SQLiteStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s(id, content, meta, embedding) VALUES(?, ?, ?, ?)`, s.table))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("vector: Document.ID must be set in AddDocuments")
		}
		emb, err := EncodeEmbedding(d.Embedding)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, d.Metadata, emb); err != nil {
			return nil, fmt.Errorf("vector: insert %q: %w", d.ID, err)
		}
		ids = append(ids, d.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// LoadEmbeddings streams every non-empty embedding in rowid order.
func (s *SQLiteStore) LoadEmbeddings(ctx context.Context) ([]string, [][]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, embedding FROM %s WHERE length(embedding) > 0 ORDER BY rowid`, s.table))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("vector: document %q: %w", id, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return ids, vectors, nil
}

// Count returns the number of rows in the documents table.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

// Remove deletes a document by ID.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("vector: Remove called with empty id")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), id)
	return err
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
