package datafactory

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// stubDriver is a database/sql driver serving canned results. Every DSN names
// its own stubDB.
type stubDriver struct{}

type stubDB struct {
	mu      sync.Mutex
	columns []string
	rows    [][]driver.Value
	queries []string
	args    [][]driver.Value
	failure error
}

var (
	stubMu  sync.Mutex
	stubDBs = map[string]*stubDB{}
)

func init() {
	sql.Register("stubsql", stubDriver{})
}

func newStubDB(dsn string, columns []string, rows ...[]driver.Value) *stubDB {
	db := &stubDB{columns: columns, rows: rows}
	stubMu.Lock()
	stubDBs[dsn] = db
	stubMu.Unlock()
	return db
}

func (d *stubDB) lastQuery() (string, []driver.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queries) == 0 {
		return "", nil
	}
	return d.queries[len(d.queries)-1], d.args[len(d.args)-1]
}

func (stubDriver) Open(dsn string) (driver.Conn, error) {
	stubMu.Lock()
	db, ok := stubDBs[dsn]
	stubMu.Unlock()
	if !ok {
		return nil, errors.New("unknown stub database " + dsn)
	}
	return &stubConn{db: db}, nil
}

type stubConn struct{ db *stubDB }

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{db: c.db, query: query}, nil
}
func (c *stubConn) Close() error              { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type stubStmt struct {
	db    *stubDB
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }
func (s *stubStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("exec not supported")
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.queries = append(s.db.queries, s.query)
	s.db.args = append(s.db.args, args)
	if s.db.failure != nil {
		return nil, s.db.failure
	}
	return &stubRows{columns: s.db.columns, rows: s.db.rows}, nil
}

type stubRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
