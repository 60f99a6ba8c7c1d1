package knn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	covidx "github.com/viant/covertree/index/cover"
	"github.com/viant/covertree/vector"
	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name the virtual table module is registered under.
const ModuleName = "cover_knn"

// Module implements vtab.Module for the cover_knn virtual table. Every table
// reads its points from a documents table and serves MATCH queries from an
// in-memory cover index shared across connections. SQLite modules are
// process-wide, so tables bind to the database most recently passed to
// Register.
type Module struct {
	db atomic.Pointer[sql.DB]
}

var module = &Module{}

type tableKey struct {
	db   *sql.DB
	name string
}

var tables = struct {
	mu     sync.RWMutex
	byName map[tableKey]*Table
}{byName: make(map[tableKey]*Table)}

func lookupTable(db *sql.DB, name string) (*Table, bool) {
	tables.mu.RLock()
	defer tables.mu.RUnlock()
	t, ok := tables.byName[tableKey{db: db, name: unqualified(name)}]
	return t, ok
}

// Table represents a single cover_knn virtual table instance.
type Table struct {
	db        *sql.DB
	dbName    string
	tableName string
	source    string // qualified documents table (e.g. "main._cover_nn")

	dbPathOnce sync.Once
	dbPath     string

	options tableOptions
}

type tableOptions struct {
	source    string
	level     int32
	descent   covidx.Descent
	bound     covidx.BoundStrategy
	parallel  int
	bestFirst bool
}

func (o tableOptions) indexOptions() []covidx.Option {
	opts := []covidx.Option{
		covidx.WithLevel(o.level),
		covidx.WithDescent(o.descent),
		covidx.WithBoundStrategy(o.bound),
		covidx.WithBestFirst(o.bestFirst),
	}
	if o.parallel > 0 {
		opts = append(opts, covidx.WithBuildParallelism(o.parallel))
	}
	return opts
}

func parseTableOptions(args []string) (tableOptions, error) {
	var opts tableOptions
	for _, raw := range args {
		a := strings.TrimSpace(raw)
		if a == "" {
			continue
		}
		parts := strings.SplitN(a, "=", 2)
		if len(parts) != 2 {
			return opts, fmt.Errorf("knn: expected key=value option, got %q", a)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.Trim(strings.TrimSpace(parts[1]), `'"`)
		switch key {
		case "source":
			if !validName(val) {
				return opts, fmt.Errorf("knn: invalid source table %q", val)
			}
			opts.source = val
		case "level":
			n, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return opts, fmt.Errorf("knn: invalid level %q: %w", val, err)
			}
			opts.level = int32(n)
		case "descent":
			switch strings.ToLower(val) {
			case "first":
				opts.descent = covidx.DescentFirst
			case "nearest":
				opts.descent = covidx.DescentNearest
			default:
				return opts, fmt.Errorf("knn: unknown descent %q", val)
			}
		case "bound":
			switch strings.ToLower(val) {
			case "level":
				opts.bound = covidx.BoundLevel
			case "node", "per_node", "pernode":
				opts.bound = covidx.BoundPerNode
			default:
				return opts, fmt.Errorf("knn: unknown bound %q", val)
			}
		case "parallel":
			switch strings.ToLower(val) {
			case "", "auto":
				opts.parallel = 0
			default:
				n, err := strconv.Atoi(val)
				if err != nil || n < 1 {
					return opts, fmt.Errorf("knn: invalid parallel %q", val)
				}
				opts.parallel = n
			}
		case "search":
			switch strings.ToLower(val) {
			case "depth_first", "depth-first":
				opts.bestFirst = false
			case "best_first", "best-first":
				opts.bestFirst = true
			default:
				return opts, fmt.Errorf("knn: unknown search %q", val)
			}
		default:
			return opts, fmt.Errorf("knn: unknown option %q", key)
		}
	}
	return opts, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Shared cache of built indices keyed by db path and table, reused across connections.
var sharedCache = struct {
	mu    sync.RWMutex
	byKey map[string]*cacheEntry
}{byKey: make(map[string]*cacheEntry)}

var registerInvalidateOnce sync.Once

type cacheEntry struct {
	mu       sync.Mutex
	idx      *covidx.Index
	rowids   map[string]int64
	building bool
	cond     *sync.Cond
}

func newCacheEntry() *cacheEntry {
	e := &cacheEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *cacheEntry) get() (*covidx.Index, map[string]int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx, e.rowids
}

func (e *cacheEntry) set(idx *covidx.Index, rowids map[string]int64) {
	e.mu.Lock()
	e.idx, e.rowids = idx, rowids
	e.mu.Unlock()
}

// acquire waits for any build in flight. It returns the cached index, or
// reports true when the caller now owns the build and must call finish.
// With force the caller always takes the build.
func (e *cacheEntry) acquire(force bool) (*covidx.Index, map[string]int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.building {
		e.cond.Wait()
	}
	if e.idx != nil && !force {
		return e.idx, e.rowids, false
	}
	e.building = true
	return nil, nil, true
}

func (e *cacheEntry) finish() {
	e.mu.Lock()
	e.building = false
	e.cond.Broadcast()
	e.mu.Unlock()
}

func cacheKey(dbPath, tableName string) string {
	return dbPath + "|" + tableName
}

func getCacheEntry(key string) *cacheEntry {
	sharedCache.mu.RLock()
	entry := sharedCache.byKey[key]
	sharedCache.mu.RUnlock()
	if entry != nil {
		return entry
	}
	sharedCache.mu.Lock()
	defer sharedCache.mu.Unlock()
	if entry = sharedCache.byKey[key]; entry == nil {
		entry = newCacheEntry()
		sharedCache.byKey[key] = entry
	}
	return entry
}

// InvalidateCache drops cached indices built from the named documents table
// across active connections. It returns the number of dropped entries.
func InvalidateCache(source string) int {
	source = unqualified(source)
	sharedCache.mu.Lock()
	defer sharedCache.mu.Unlock()
	count := 0
	suffix := "|" + source
	for k, entry := range sharedCache.byKey {
		if strings.HasSuffix(k, suffix) {
			entry.set(nil, nil)
			count++
		}
	}
	return count
}

func unqualified(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// invalidateFunc implements SQL scalar cover_invalidate(source TEXT) → INT.
func invalidateFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 1 {
		return int64(0), nil
	}
	source, err := asString(args[0])
	if err != nil {
		return int64(0), nil
	}
	return int64(InvalidateCache(source)), nil
}

const (
	idxScan   = 0
	idxMatch  = 1
	idxLimit  = 2
	idxRadius = 4
)

type row struct {
	rowid    int64
	id       string
	distance float64
}

// Cursor scans results from a cover_knn table.
type Cursor struct {
	table   *Table
	rows    []row
	pos     int
	matched bool
	k       int64
}

// Register registers the cover_knn virtual table module with the provided *sql.DB.
// It must run before the first connection of db is opened.
func Register(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("knn: db is nil")
	}
	module.db.Store(db)
	if err := vtab.RegisterModule(db, ModuleName, module); err != nil {
		if !strings.Contains(err.Error(), "already registered") {
			return err
		}
	}
	var err error
	registerInvalidateOnce.Do(func() {
		err = sqlite.RegisterScalarFunction("cover_invalidate", 1, invalidateFunc)
	})
	return err
}

// Create initializes a cover_knn table instance.
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect attaches to an existing cover_knn table instance.
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *Module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("knn: expected at least 3 args, got %d", len(args))
	}
	if err := ctx.EnableConstraintSupport(); err != nil {
		return nil, fmt.Errorf("knn: EnableConstraintSupport failed: %w", err)
	}
	// USING cover_knn(doc_id, level=0, ...) names the visible id column.
	col := "doc_id"
	optStart := 3
	if len(args) > 3 {
		a := strings.TrimSpace(args[3])
		if a != "" && !strings.Contains(a, "=") {
			col = a
			optStart = 4
		}
	}
	opts, err := parseTableOptions(args[optStart:])
	if err != nil {
		return nil, err
	}
	if err := ctx.Declare(fmt.Sprintf("CREATE TABLE %s(%s TEXT, distance REAL HIDDEN, k INTEGER HIDDEN)", args[2], col)); err != nil {
		return nil, err
	}
	db := m.db.Load()
	t := &Table{db: db, dbName: args[1], tableName: args[2], options: opts}
	t.source = t.qualifiedSource()
	tables.mu.Lock()
	tables.byName[tableKey{db: db, name: t.tableName}] = t
	tables.mu.Unlock()
	return t, nil
}

// BestIndex pushes down MATCH on the id column, k equality and an upper
// distance bound.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	var matchC, limitC, radiusC *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable {
			continue
		}
		switch {
		case c.Column == 0 && c.Op == vtab.OpMATCH:
			matchC = c
		case c.Column == 2 && c.Op == vtab.OpEQ:
			limitC = c
		case c.Column == 1 && (c.Op == vtab.OpLE || c.Op == vtab.OpLT):
			radiusC = c
		}
	}
	if matchC == nil {
		info.IdxNum = idxScan
		info.EstimatedCost = 1e6
		return nil
	}
	nextArg := 0
	matchC.ArgIndex = nextArg
	matchC.Omit = true
	nextArg++
	info.IdxNum = idxMatch
	if limitC != nil {
		limitC.ArgIndex = nextArg
		limitC.Omit = true
		nextArg++
		info.IdxNum |= idxLimit
	}
	if radiusC != nil {
		// Kept for SQLite to recheck, so LT stays strict.
		radiusC.ArgIndex = nextArg
		info.IdxNum |= idxRadius
	}
	if len(info.OrderBy) == 1 && info.OrderBy[0].Column == 1 && !info.OrderBy[0].Desc {
		info.OrderByConsumed = true
	}
	info.EstimatedCost = 10
	return nil
}

// Open allocates a new cursor.
func (t *Table) Open() (vtab.Cursor, error) { return &Cursor{table: t}, nil }

// Disconnect cleans up per-connection resources.
func (t *Table) Disconnect() error { return nil }

// Destroy drops the cached index; the documents table persists.
func (t *Table) Destroy() error {
	tables.mu.Lock()
	delete(tables.byName, tableKey{db: t.db, name: t.tableName})
	tables.mu.Unlock()
	InvalidateCache(t.source)
	return nil
}

// Filter computes the result set based on idxNum/vals.
func (c *Cursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	c.rows, c.pos, c.matched, c.k = nil, 0, false, 0
	if c.table == nil || c.table.db == nil {
		return nil
	}
	ctx := context.Background()
	if idxNum == idxScan {
		return c.scan(ctx)
	}
	if len(vals) == 0 || vals[0] == nil {
		return fmt.Errorf("knn: MATCH argument is required")
	}
	query, err := decodeMatchArg(vals[0])
	if err != nil {
		return err
	}
	next := 1
	k := 0
	if idxNum&idxLimit != 0 {
		if len(vals) <= next {
			return fmt.Errorf("knn: missing k constraint")
		}
		n, err := asInt(vals[next])
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("knn: k must be non-negative, got %d", n)
		}
		k = int(n)
		c.k = n
		next++
	}
	radius := math.Inf(1)
	if idxNum&idxRadius != 0 {
		if len(vals) <= next {
			return fmt.Errorf("knn: missing distance constraint")
		}
		if radius, err = asFloat(vals[next]); err != nil {
			return err
		}
	}

	idx, rowids, err := c.table.ensureIndex(ctx)
	if err != nil {
		return err
	}
	c.matched = true
	if idx.Len() == 0 {
		return nil
	}
	ids, distances, err := idx.Query(query, k)
	if err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	out := make([]row, 0, len(ids))
	for i, id := range ids {
		if distances[i] > radius {
			break
		}
		rid, ok := rowids[id]
		if !ok {
			continue
		}
		out = append(out, row{rowid: rid, id: id, distance: distances[i]})
	}
	c.rows = out
	return nil
}

func (c *Cursor) scan(ctx context.Context) error {
	if err := c.table.ensureSource(); err != nil {
		return err
	}
	q := fmt.Sprintf("SELECT rowid, id FROM %s ORDER BY rowid", c.table.source)
	rows, err := c.table.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowid, &r.id); err != nil {
			return err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	c.rows = out
	return nil
}

// Next advances the cursor.
func (c *Cursor) Next() error {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return nil
}

// Eof reports end-of-rows.
func (c *Cursor) Eof() bool { return c.pos >= len(c.rows) }

// Column returns the value of a column in the current row.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, fmt.Errorf("knn: Column out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	switch col {
	case 0:
		return c.rows[c.pos].id, nil
	case 1:
		if !c.matched {
			return nil, nil
		}
		return c.rows[c.pos].distance, nil
	case 2:
		if c.k == 0 {
			return nil, nil
		}
		return c.k, nil
	}
	return nil, fmt.Errorf("knn: unsupported column %d", col)
}

// Rowid returns the rowid of the current document.
func (c *Cursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return 0, fmt.Errorf("knn: Rowid out of range (pos=%d,len=%d)", c.pos, len(c.rows))
	}
	return c.rows[c.pos].rowid, nil
}

// Close releases resources.
func (c *Cursor) Close() error { c.rows = nil; c.pos = 0; return nil }

// ensureSource ensures the documents table exists and that writes to it
// invalidate the cached index.
func (t *Table) ensureSource() error {
	if t.db == nil {
		return fmt.Errorf("knn: db is nil")
	}
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    content TEXT,
    meta TEXT,
    embedding BLOB
)`, t.source)
	if _, err := t.db.Exec(stmt); err != nil {
		return err
	}
	trigBase := sanitizeName("trg_cover_" + t.source)
	inv := `SELECT cover_invalidate(` + quoteLiteral(unqualified(t.source)) + `);`
	for _, event := range []string{"INSERT", "UPDATE", "DELETE"} {
		stmt := fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_%s AFTER %s ON %s BEGIN %s END;`,
			trigBase, strings.ToLower(event), event, t.source, inv)
		if _, err := t.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// qualifiedSource returns the fully-qualified documents table name.
func (t *Table) qualifiedSource() string {
	base := t.options.source
	if base == "" {
		base = "_cover_" + t.tableName
	}
	if strings.TrimSpace(t.dbName) == "" {
		return base
	}
	return t.dbName + "." + base
}

func resolveDbPath(ctx context.Context, db *sql.DB, dbName string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("knn: db is nil")
	}
	if dbName == "" {
		dbName = "main"
	}
	rows, err := db.QueryContext(ctx, `SELECT name, file FROM pragma_database_list`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var name, file string
		if err := rows.Scan(&name, &file); err != nil {
			return "", err
		}
		if name != dbName {
			continue
		}
		if file == "" {
			return name, nil
		}
		return file, nil
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return dbName, nil
}

func (t *Table) cachedDbPath(ctx context.Context) string {
	t.dbPathOnce.Do(func() {
		path, err := resolveDbPath(ctx, t.db, t.dbName)
		if err != nil {
			path = t.dbName
		}
		t.dbPath = path
	})
	return t.dbPath
}

// ensureIndex returns the shared index for this table, building it from the
// documents table on first use or after an invalidation.
func (t *Table) ensureIndex(ctx context.Context) (*covidx.Index, map[string]int64, error) {
	key := cacheKey(t.cachedDbPath(ctx), unqualified(t.source))
	entry := getCacheEntry(key)
	if idx, rowids := entry.get(); idx != nil {
		return idx, rowids, nil
	}
	if idx, rowids, owner := entry.acquire(false); !owner {
		return idx, rowids, nil
	}
	defer entry.finish()

	idx, rowids, err := t.buildIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	entry.set(idx, rowids)
	return idx, rowids, nil
}

func (t *Table) buildIndex(ctx context.Context) (*covidx.Index, map[string]int64, error) {
	if err := t.ensureSource(); err != nil {
		return nil, nil, err
	}
	q := fmt.Sprintf("SELECT rowid, id, embedding FROM %s WHERE length(embedding) > 0 ORDER BY rowid", t.source)
	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var ids []string
	var vecs [][]float32
	rowids := map[string]int64{}
	for rows.Next() {
		var rid int64
		var id string
		var emb []byte
		if err := rows.Scan(&rid, &id, &emb); err != nil {
			return nil, nil, err
		}
		v, err := vector.DecodeEmbedding(emb)
		if err != nil {
			return nil, nil, fmt.Errorf("knn: document %q: %w", id, err)
		}
		ids = append(ids, id)
		vecs = append(vecs, v)
		rowids[id] = rid
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	idx := covidx.New(t.options.indexOptions()...)
	if err := idx.Build(ids, vecs); err != nil {
		return nil, nil, fmt.Errorf("knn: %w", err)
	}
	return idx, rowids, nil
}

// Reindex rebuilds the shared index of the named cover_knn table of db and
// validates it. Only tables connected since db was registered are known;
// options declared at CREATE time are honoured.
func Reindex(ctx context.Context, db *sql.DB, name string) (*covidx.Index, error) {
	t, ok := lookupTable(db, name)
	if !ok {
		return nil, fmt.Errorf("knn: unknown table %q", name)
	}
	entry := getCacheEntry(cacheKey(t.cachedDbPath(ctx), unqualified(t.source)))
	entry.acquire(true)
	defer entry.finish()
	idx, rowids, err := t.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("knn: %s: %w", name, err)
	}
	entry.set(idx, rowids)
	return idx, nil
}

func asFloat(v vtab.Value) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case []byte:
		return parseFloat(string(val))
	case string:
		return parseFloat(val)
	default:
		return 0, fmt.Errorf("knn: unsupported distance type %T", v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("knn: cannot parse distance %q: %w", s, err)
	}
	return f, nil
}

func asInt(v vtab.Value) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("knn: k must be an integer, got %v", val)
		}
		return int64(val), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("knn: cannot parse k %q: %w", val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("knn: unsupported k type %T", v)
	}
}

func asString(v vtab.Value) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case nil:
		return "", fmt.Errorf("knn: value is nil")
	default:
		return "", fmt.Errorf("knn: unsupported text type %T", v)
	}
}

// sanitizeName converts a qualified name into a safe identifier for triggers.
func sanitizeName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// quoteLiteral returns a SQL string literal with single quotes escaped.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
