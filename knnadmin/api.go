package knnadmin

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/viant/covertree/knn"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name the admin module is registered under.
const ModuleName = "cover_admin"

// Module provides administrative operations over cover_knn tables via a
// virtual table.
// Usage:
//
//	CREATE VIRTUAL TABLE cover_admin USING cover_admin(op);
//	SELECT op FROM cover_admin WHERE op MATCH 'nn'; -- rebuild and validate index
//
// Returns rows reindexed:<count>, height:<levels> and levels:<root>..<bottom>.
type Module struct{ db atomic.Pointer[sql.DB] }

var module = &Module{}

type Table struct{ db *sql.DB }

type Cursor struct {
	table *Table
	rows  []string
	pos   int
}

func Register(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("cover_admin: db is nil")
	}
	module.db.Store(db)
	if err := vtab.RegisterModule(db, ModuleName, module); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	return nil
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("cover_admin: need at least 3 args")
	}
	// Single TEXT column `op` reporting results.
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(op)", args[2])); err != nil {
		return nil, err
	}
	return &Table{db: m.db.Load()}, nil
}

func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		if c.Column == 0 && c.Op == vtab.OpMATCH {
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			break
		}
	}
	return nil
}

func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }
func (t *Table) Disconnect() error          { return nil }
func (t *Table) Destroy() error             { return nil }

func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows = nil
	c.pos = 0
	if idxNum != 1 || len(vals) == 0 || vals[0] == nil {
		return nil
	}
	name, ok := vals[0].(string)
	if !ok {
		return fmt.Errorf("cover_admin: MATCH expects cover_knn table name as TEXT")
	}
	rows, err := reindex(context.Background(), c.table.db, name)
	if err != nil {
		return err
	}
	c.rows = rows
	return nil
}

func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("cover_admin: Column out of range")
	}
	if col == 0 {
		return c.rows[c.pos], nil
	}
	return nil, nil
}
func (c *Cursor) Rowid() (int64, error) { return int64(c.pos + 1), nil }
func (c *Cursor) Close() error          { c.rows = nil; c.pos = 0; return nil }

// reindex rebuilds the shared index of a cover_knn table and reports its shape.
func reindex(ctx context.Context, db *sql.DB, name string) ([]string, error) {
	idx, err := knn.Reindex(ctx, db, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	stats := idx.Stats()
	return []string{
		fmt.Sprintf("reindexed:%d", stats.Size),
		fmt.Sprintf("height:%d", stats.Height),
		fmt.Sprintf("levels:%d..%d", stats.RootLevel, stats.BottomLevel),
	}, nil
}
