package datafactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/pingcap/report-engine/pkg/reporterr"
	"github.com/pingcap/report-engine/pkg/table"
)

// paramMarker matches ${name} parameter markers in SQL text.
var paramMarker = regexp.MustCompile(`\$\{([^}]+)\}`)

// ConnectionProvider opens the database a SQLDataFactory queries.
type ConnectionProvider interface {
	Open(ctx context.Context) (*sql.DB, error)
	// DriverName selects the placeholder syntax.
	DriverName() string
}

// DriverConnectionProvider opens connections with sql.Open.
type DriverConnectionProvider struct {
	Driver string
	DSN    string
}

func (p *DriverConnectionProvider) DriverName() string { return p.Driver }

func (p *DriverConnectionProvider) Open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(p.Driver, p.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", p.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", p.Driver, err)
	}
	return db, nil
}

// SQLDataFactory runs SQL queries over database/sql. Queries are either
// registered by name or, when free-form queries are allowed, plain SQL.
// ${name} markers are bound from the query parameters; a slice value expands
// to one placeholder per element so it can feed an IN list.
type SQLDataFactory struct {
	provider ConnectionProvider
	queries  map[string]string
	freeForm bool

	mu  sync.Mutex
	db  *sql.DB
	log logrus.FieldLogger
}

// NewSQLDataFactory creates a factory using provider.
func NewSQLDataFactory(provider ConnectionProvider) *SQLDataFactory {
	return &SQLDataFactory{provider: provider, queries: make(map[string]string)}
}

// SetQuery registers a named query.
func (f *SQLDataFactory) SetQuery(name, sqlText string) {
	f.queries[name] = sqlText
}

// SetFreeForm allows queries that are not registered names.
func (f *SQLDataFactory) SetFreeForm(allow bool) {
	f.freeForm = allow
}

func (f *SQLDataFactory) Initialize(_ context.Context, dfc DataFactoryContext) error {
	if f.provider == nil {
		return reporterr.Newf(reporterr.KindDataFactory, "initialize", "no connection provider")
	}
	f.log = logger(dfc).WithField("factory", "sql").WithField("driver", f.provider.DriverName())
	return nil
}

func (f *SQLDataFactory) QueryNames() []string {
	names := make([]string, 0, len(f.queries))
	for name := range f.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *SQLDataFactory) IsQueryExecutable(query string, _ table.DataRow) bool {
	if _, ok := f.queries[query]; ok {
		return true
	}
	return f.freeForm && looksLikeSQL(query)
}

// ReferencedFields returns the parameter names used by query.
func (f *SQLDataFactory) ReferencedFields(query string, _ table.DataRow) []string {
	text, ok := f.queries[query]
	if !ok {
		text = query
	}
	seen := make(map[string]bool)
	var fields []string
	for _, m := range paramMarker.FindAllStringSubmatch(text, -1) {
		name := markerName(m[1])
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return append(fields, ParamQueryLimit)
}

func (f *SQLDataFactory) QueryData(ctx context.Context, query string, params table.DataRow) (*table.TableModel, error) {
	op := "query " + query
	if err := ctx.Err(); err != nil {
		return nil, reporterr.Interrupted(op, err)
	}
	text, ok := f.queries[query]
	if !ok {
		if !f.freeForm || !looksLikeSQL(query) {
			return nil, reporterr.Newf(reporterr.KindDataFactory, op, "query is not defined")
		}
		text = query
	}

	db, err := f.connection(ctx)
	if err != nil {
		return nil, wrapQueryError(op, err)
	}

	stmt, args := TranslateQuery(text, params, f.provider.DriverName())
	qctx, cancel := WithQueryTimeout(ctx, params)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(qctx, stmt, args...)
	if err != nil {
		return nil, wrapQueryError(op, err)
	}
	defer rows.Close()

	tm, err := scanRows(qctx, rows, QueryLimit(params))
	if err != nil {
		return nil, wrapQueryError(op, err)
	}
	f.logger().WithField("query", query).WithField("rows", tm.RowCount()).
		WithField("elapsed", time.Since(start)).Debug("sql query finished")
	return tm, nil
}

// Derive returns a factory with the same queries and its own connection.
func (f *SQLDataFactory) Derive() DataFactory {
	d := NewSQLDataFactory(f.provider)
	for k, v := range f.queries {
		d.queries[k] = v
	}
	d.freeForm = f.freeForm
	return d
}

func (f *SQLDataFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db == nil {
		return nil
	}
	err := f.db.Close()
	f.db = nil
	return err
}

func (f *SQLDataFactory) connection(ctx context.Context) (*sql.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db != nil {
		return f.db, nil
	}
	if f.provider == nil {
		return nil, fmt.Errorf("no connection provider")
	}
	db, err := f.provider.Open(ctx)
	if err != nil {
		return nil, err
	}
	f.db = db
	return db, nil
}

func (f *SQLDataFactory) logger() logrus.FieldLogger {
	if f.log == nil {
		return logger(nil)
	}
	return f.log
}

func wrapQueryError(op string, err error) error {
	switch {
	case errors.Is(err, reporterr.ErrProcessing):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reporterr.Interrupted(op, err)
	default:
		return reporterr.New(reporterr.KindDataFactory, op, err)
	}
}

// TranslateQuery replaces ${name} markers with driver placeholders and returns
// the statement with its arguments. Unknown parameters bind as NULL.
func TranslateQuery(query string, params table.DataRow, driver string) (string, []any) {
	var args []any
	placeholder := func() string {
		if driver == "postgres" {
			return "$" + strconv.Itoa(len(args))
		}
		return "?"
	}
	out := paramMarker.ReplaceAllStringFunc(query, func(match string) string {
		name := markerName(paramMarker.FindStringSubmatch(match)[1])
		var value any
		if params != nil {
			value, _ = params.Get(name)
		}
		values, isList := expandList(value)
		if !isList {
			args = append(args, value)
			return placeholder()
		}
		if len(values) == 0 {
			args = append(args, nil)
			return placeholder()
		}
		parts := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			parts[i] = placeholder()
		}
		return strings.Join(parts, ", ")
	})
	return out, args
}

// markerName strips the optional ",type" suffix of ${name,type}.
func markerName(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func expandList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func looksLikeSQL(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(q, "select") || strings.HasPrefix(q, "with") || strings.HasPrefix(q, "show")
}

func scanRows(ctx context.Context, rows *sql.Rows, limit int) (*table.TableModel, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types := make([]table.ColumnType, len(columns))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			types[i] = sqlColumnType(ct.DatabaseTypeName())
		}
	}

	var data [][]any
	for rows.Next() {
		if limit > 0 && len(data) >= limit {
			break
		}
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		data = append(data, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, typ := range types {
		if typ == "" || typ == table.TypeAny {
			types[i] = inferGoType(data, i)
		}
	}
	tm := table.NewTableModel(columns, types)
	for _, raw := range data {
		for i, v := range raw {
			raw[i] = normalizeSQLValue(v, types[i])
		}
		if err := tm.AddRow(raw...); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

func sqlColumnType(dbType string) table.ColumnType {
	t := strings.ToUpper(dbType)
	switch {
	case t == "":
		return table.TypeAny
	case isIntegerType(t):
		return table.TypeInt
	case strings.Contains(t, "DECIMAL"), strings.Contains(t, "NUMERIC"), strings.Contains(t, "FLOAT"),
		strings.Contains(t, "DOUBLE"), t == "REAL":
		return table.TypeFloat
	case strings.HasPrefix(t, "BOOL"), t == "BIT":
		return table.TypeBool
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIMESTAMP"):
		return table.TypeTime
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), t == "JSON", t == "UUID":
		return table.TypeString
	default:
		return table.TypeAny
	}
}

var integerTypes = map[string]bool{
	"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "BIGINT": true,
	"INT2": true, "INT4": true, "INT8": true, "SERIAL": true, "SMALLSERIAL": true, "BIGSERIAL": true,
}

// isIntegerType matches integer type names, including "UNSIGNED BIGINT".
func isIntegerType(t string) bool {
	for _, word := range strings.Fields(t) {
		if integerTypes[word] {
			return true
		}
	}
	return false
}

func inferGoType(data [][]any, col int) table.ColumnType {
	for _, row := range data {
		switch row[col].(type) {
		case nil:
			continue
		case int64, int32, int:
			return table.TypeInt
		case float64, float32:
			return table.TypeFloat
		case bool:
			return table.TypeBool
		case time.Time:
			return table.TypeTime
		case string, []byte:
			return table.TypeString
		default:
			return table.TypeAny
		}
	}
	return table.TypeAny
}

func normalizeSQLValue(v any, typ table.ColumnType) any {
	b, ok := v.([]byte)
	if !ok {
		return table.WidenNumber(v)
	}
	s := string(b)
	switch typ {
	case table.TypeInt, table.TypeFloat, table.TypeBool, table.TypeTime:
		if converted, err := table.ConvertString(s, typ); err == nil {
			return converted
		}
	}
	return s
}
