// Package vector provides the float32 vector helpers and the SQLite-backed
// point source used by this project. It includes:
//   - Document model and Store interface
//   - SQLiteStore: durable storage for input documents and their embeddings
//   - Schema helpers to create a docs table
//   - Embedding encoding (BLOB) and distance functions
package vector
