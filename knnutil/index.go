package knnutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viant/covertree/vector"
)

// EmbedFunc converts free-form text into an embedding.
//
// Implementations can call any embedding provider as long as they return
// vectors of a fixed dimension. The cover_knn table only ever sees the
// encoded BLOBs.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SourceTableName derives the default documents table of a cover_knn table.
//
//	SourceTableName("nn") == "_cover_nn"
func SourceTableName(virtualTable string) string {
	return "_cover_" + virtualTable
}

// Index provides a text-level API over a cover_knn virtual table and its
// documents table. It stays embedding-agnostic by requiring an EmbedFunc.
type Index struct {
	DB          *sql.DB
	VirtualName string
	SourceName  string
	Embed       EmbedFunc
}

// Document is a logical document stored in the documents table.
type Document struct {
	ID      string
	Content string
	Meta    string
}

// Match is a single search hit.
type Match struct {
	ID       string
	Distance float64
	// Similarity is the cosine similarity between query and document embeddings.
	Similarity float64
	Content    string
	Meta       string
}

// NewIndex constructs an Index for the cover_knn table virtualTable whose
// documents live in the default source table. The virtual table must exist.
func NewIndex(db *sql.DB, virtualTable string, embed EmbedFunc) (*Index, error) {
	return NewIndexWithSource(db, virtualTable, SourceTableName(virtualTable), embed)
}

// NewIndexWithSource is like NewIndex for a table declared with source=<table>.
// The documents table is created when missing.
func NewIndexWithSource(db *sql.DB, virtualTable, source string, embed EmbedFunc) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("knnutil: db is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("knnutil: EmbedFunc is nil")
	}
	if err := vector.EnsureTable(db, source); err != nil {
		return nil, err
	}
	return &Index{DB: db, VirtualName: virtualTable, SourceName: source, Embed: embed}, nil
}

// UpsertDocumentsText embeds each document's Content and upserts it into the
// documents table. Triggers installed by cover_knn drop the cached index.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s(id, content, meta, embedding)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  content = excluded.content,
  meta = excluded.meta,
  embedding = excluded.embedding`, ix.SourceName)
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("knnutil: document id is empty")
		}
		vec, err := ix.Embed(ctx, d.Content)
		if err != nil {
			return fmt.Errorf("knnutil: embed %q: %w", d.ID, err)
		}
		blob, err := vector.EncodeEmbedding(vec)
		if err != nil {
			return err
		}
		if _, err = ix.DB.ExecContext(ctx, stmt, d.ID, d.Content, d.Meta, blob); err != nil {
			return fmt.Errorf("knnutil: upsert %q: %w", d.ID, err)
		}
	}
	return nil
}

// DeleteDocuments removes documents with the given ids.
func (ix *Index) DeleteDocuments(ctx context.Context, ids []string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", ix.SourceName)
	for _, id := range ids {
		if _, err := ix.DB.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

// QueryText embeds query and returns up to k nearest documents, nearest
// first. When k <= 0 every document is returned.
func (ix *Index) QueryText(ctx context.Context, query string, k int) ([]Match, error) {
	qVec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qBlob, err := vector.EncodeEmbedding(qVec)
	if err != nil {
		return nil, err
	}

	// The MATCH result is joined back to the documents table by rowid.
	q := fmt.Sprintf(`SELECT v.doc_id, v.distance, s.content, s.meta, s.embedding
FROM %s v JOIN %s s ON s.rowid = v.rowid
WHERE v.doc_id MATCH ? AND v.k = ?
ORDER BY v.distance`, ix.VirtualName, ix.SourceName)
	if k < 0 {
		k = 0
	}
	rows, err := ix.DB.QueryContext(ctx, q, qBlob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m       Match
			content sql.NullString
			meta    sql.NullString
			blob    []byte
		)
		if err := rows.Scan(&m.ID, &m.Distance, &content, &meta, &blob); err != nil {
			return nil, err
		}
		m.Content, m.Meta = content.String, meta.String
		emb, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		if m.Similarity, err = vector.CosineSimilarity(qVec, emb); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
