package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Declared SQL types carry the column kind. Cell types contain "TEXT" so
// SQLite gives them text affinity and never coerces the JSON payload.
const (
	sqlFloat     = "REAL"
	sqlInt       = "INTEGER"
	sqlString    = "TEXT"
	sqlFloatCell = "CELLTEXT_F64"
	sqlBoolCell  = "CELLTEXT_BOOL"
	rowColumn    = "_row"
)

const defaultBusyTimeout = 5 * time.Second

// SQLite is a Store backed by a single SQLite database file. Each table is
// an SQL table with a hidden row-order key; cell columns are JSON arrays.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("table: sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("table: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	// Single writer; the correction serializes all access anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", defaultBusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("table: set busy_timeout: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Open(ctx context.Context, name string, mode Mode) (Table, error) {
	order, kinds, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	return &sqliteTable{store: s, name: name, mode: mode, kinds: kinds, order: order}, nil
}

func (s *SQLite) Create(ctx context.Context, name string, cols []Column) error {
	if err := validateColumns(name, cols); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("table: begin create %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("table: drop %s: %w", name, err)
	}
	defs := []string{quoteIdent(rowColumn) + " INTEGER PRIMARY KEY"}
	names := make([]string, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, c := range cols {
		typ, err := sqlType(c.Kind)
		if err != nil {
			return err
		}
		defs = append(defs, quoteIdent(c.Name)+" "+typ)
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("table: create %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, %s)",
		quoteIdent(name), quoteIdent(rowColumn), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("table: prepare insert %s: %w", name, err)
	}
	defer stmt.Close()

	rows := cols[0].Len()
	args := make([]any, len(cols)+1)
	for r := 0; r < rows; r++ {
		args[0] = r
		for i, c := range cols {
			v, err := cellValue(c, r)
			if err != nil {
				return fmt.Errorf("table: %s.%s row %d: %w", name, c.Name, r, err)
			}
			args[i+1] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("table: insert %s row %d: %w", name, r, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Copy(ctx context.Context, src, dst string) error {
	t, err := s.Open(ctx, src, ReadOnly)
	if err != nil {
		return err
	}
	defer t.Close()
	st := t.(*sqliteTable)

	cols := make([]Column, 0, len(st.order))
	for _, name := range st.order {
		c, err := st.column(ctx, name, st.kinds[name])
		if err != nil {
			return err
		}
		cols = append(cols, c)
	}
	return s.Create(ctx, dst, cols)
}

// schema returns the column names in declaration order and their kinds.
func (s *SQLite) schema(ctx context.Context, name string) ([]string, map[string]Kind, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("table: schema %s: %w", name, err)
	}
	defer rows.Close()

	var order []string
	kinds := make(map[string]Kind)
	for rows.Next() {
		var (
			cid     int
			col     string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, nil, fmt.Errorf("table: schema %s: %w", name, err)
		}
		if col == rowColumn {
			continue
		}
		k, err := kindOf(typ)
		if err != nil {
			return nil, nil, fmt.Errorf("table: %s.%s: %w", name, col, err)
		}
		order = append(order, col)
		kinds[col] = k
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("table: schema %s: %w", name, err)
	}
	if len(kinds) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	return order, kinds, nil
}

type sqliteTable struct {
	store  *SQLite
	name   string
	mode   Mode
	kinds  map[string]Kind
	order  []string
	closed bool
}

func (t *sqliteTable) Name() string { return t.name }

func (t *sqliteTable) Close() error {
	t.closed = true
	return nil
}

func (t *sqliteTable) NumRows(ctx context.Context) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	var n int
	if err := t.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(t.name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("table: count %s: %w", t.name, err)
	}
	return n, nil
}

func (t *sqliteTable) Floats(ctx context.Context, col string) ([]float64, error) {
	c, err := t.column(ctx, col, Float)
	return c.Floats, err
}

func (t *sqliteTable) Ints(ctx context.Context, col string) ([]int, error) {
	c, err := t.column(ctx, col, Int)
	return c.Ints, err
}

func (t *sqliteTable) Strings(ctx context.Context, col string) ([]string, error) {
	c, err := t.column(ctx, col, String)
	return c.Strings, err
}

func (t *sqliteTable) FloatCells(ctx context.Context, col string) ([][]float64, error) {
	c, err := t.column(ctx, col, FloatCell)
	return c.FloatCells, err
}

func (t *sqliteTable) BoolCells(ctx context.Context, col string) ([][]bool, error) {
	c, err := t.column(ctx, col, BoolCell)
	return c.BoolCells, err
}

func (t *sqliteTable) PutFloatCells(ctx context.Context, col string, v [][]float64) error {
	have, err := t.writableColumn(ctx, col, FloatCell)
	if err != nil {
		return err
	}
	if err := checkFloatShape(col, have.FloatCells, v); err != nil {
		return err
	}
	return t.update(ctx, Column{Name: col, Kind: FloatCell, FloatCells: v})
}

func (t *sqliteTable) PutBoolCells(ctx context.Context, col string, v [][]bool) error {
	have, err := t.writableColumn(ctx, col, BoolCell)
	if err != nil {
		return err
	}
	if err := checkBoolShape(col, have.BoolCells, v); err != nil {
		return err
	}
	return t.update(ctx, Column{Name: col, Kind: BoolCell, BoolCells: v})
}

func (t *sqliteTable) writableColumn(ctx context.Context, col string, kind Kind) (Column, error) {
	if t.closed {
		return Column{}, ErrClosed
	}
	if t.mode != ReadWrite {
		return Column{}, fmt.Errorf("%w: %s", ErrReadOnly, t.name)
	}
	return t.column(ctx, col, kind)
}

func (t *sqliteTable) update(ctx context.Context, c Column) error {
	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("table: begin update %s: %w", t.name, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quoteIdent(t.name), quoteIdent(c.Name), quoteIdent(rowColumn)))
	if err != nil {
		return fmt.Errorf("table: prepare update %s: %w", t.name, err)
	}
	defer stmt.Close()

	ids, err := t.rowIDs(ctx, tx)
	if err != nil {
		return err
	}
	for r, id := range ids {
		v, err := cellValue(c, r)
		if err != nil {
			return fmt.Errorf("table: %s.%s row %d: %w", t.name, c.Name, r, err)
		}
		if _, err := stmt.ExecContext(ctx, v, id); err != nil {
			return fmt.Errorf("table: update %s row %d: %w", t.name, r, err)
		}
	}
	return tx.Commit()
}

func (t *sqliteTable) rowIDs(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteIdent(rowColumn), quoteIdent(t.name), quoteIdent(rowColumn)))
	if err != nil {
		return nil, fmt.Errorf("table: row ids %s: %w", t.name, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqliteTable) column(ctx context.Context, col string, kind Kind) (Column, error) {
	if t.closed {
		return Column{}, ErrClosed
	}
	have, ok := t.kinds[col]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s.%s", ErrNoColumn, t.name, col)
	}
	if have != kind {
		return Column{}, fmt.Errorf("%w: %s.%s is %s, not %s", ErrKind, t.name, col, have, kind)
	}

	rows, err := t.store.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteIdent(col), quoteIdent(t.name), quoteIdent(rowColumn)))
	if err != nil {
		return Column{}, fmt.Errorf("table: read %s.%s: %w", t.name, col, err)
	}
	defer rows.Close()

	out := Column{Name: col, Kind: kind}
	for rows.Next() {
		switch kind {
		case Float:
			var v float64
			if err := rows.Scan(&v); err != nil {
				return Column{}, fmt.Errorf("table: scan %s.%s: %w", t.name, col, err)
			}
			out.Floats = append(out.Floats, v)
		case Int:
			var v int64
			if err := rows.Scan(&v); err != nil {
				return Column{}, fmt.Errorf("table: scan %s.%s: %w", t.name, col, err)
			}
			out.Ints = append(out.Ints, int(v))
		case String:
			var v string
			if err := rows.Scan(&v); err != nil {
				return Column{}, fmt.Errorf("table: scan %s.%s: %w", t.name, col, err)
			}
			out.Strings = append(out.Strings, v)
		case FloatCell:
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return Column{}, fmt.Errorf("table: scan %s.%s: %w", t.name, col, err)
			}
			var cell []float64
			if err := json.UnmarshalFromString(raw, &cell); err != nil {
				return Column{}, fmt.Errorf("table: decode %s.%s: %w", t.name, col, err)
			}
			out.FloatCells = append(out.FloatCells, cell)
		case BoolCell:
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return Column{}, fmt.Errorf("table: scan %s.%s: %w", t.name, col, err)
			}
			var cell []bool
			if err := json.UnmarshalFromString(raw, &cell); err != nil {
				return Column{}, fmt.Errorf("table: decode %s.%s: %w", t.name, col, err)
			}
			out.BoolCells = append(out.BoolCells, cell)
		}
	}
	if err := rows.Err(); err != nil {
		return Column{}, fmt.Errorf("table: read %s.%s: %w", t.name, col, err)
	}
	return out, nil
}

func cellValue(c Column, r int) (any, error) {
	switch c.Kind {
	case Float:
		return c.Floats[r], nil
	case Int:
		return int64(c.Ints[r]), nil
	case String:
		return c.Strings[r], nil
	case FloatCell:
		return json.MarshalToString(c.FloatCells[r])
	case BoolCell:
		return json.MarshalToString(c.BoolCells[r])
	default:
		return nil, fmt.Errorf("unknown column kind %d", c.Kind)
	}
}

func sqlType(k Kind) (string, error) {
	switch k {
	case Float:
		return sqlFloat, nil
	case Int:
		return sqlInt, nil
	case String:
		return sqlString, nil
	case FloatCell:
		return sqlFloatCell, nil
	case BoolCell:
		return sqlBoolCell, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %d", ErrKind, k)
	}
}

func kindOf(declared string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(declared)) {
	case sqlFloat:
		return Float, nil
	case sqlInt:
		return Int, nil
	case sqlString:
		return String, nil
	case sqlFloatCell:
		return FloatCell, nil
	case sqlBoolCell:
		return BoolCell, nil
	default:
		return 0, fmt.Errorf("%w: declared type %q", ErrKind, declared)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
