package table

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store. Tables are deep-copied on the way in and
// out, so callers never alias stored data.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Column
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Column)}
}

func (m *Memory) Open(_ context.Context, name string, mode Mode) (Table, error) {
	m.mu.RLock()
	_, ok := m.tables[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, name)
	}
	return &memTable{store: m, name: name, mode: mode}, nil
}

func (m *Memory) Create(_ context.Context, name string, cols []Column) error {
	if err := validateColumns(name, cols); err != nil {
		return err
	}
	copied := make([]Column, len(cols))
	for i, c := range cols {
		copied[i] = cloneColumn(c)
	}
	m.mu.Lock()
	m.tables[name] = copied
	m.mu.Unlock()
	return nil
}

func (m *Memory) Copy(ctx context.Context, src, dst string) error {
	m.mu.RLock()
	cols, ok := m.tables[src]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTable, src)
	}
	return m.Create(ctx, dst, cols)
}

func (m *Memory) Close() error { return nil }

// Drop removes a table. It reports whether the table existed.
func (m *Memory) Drop(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[name]
	delete(m.tables, name)
	return ok
}

func (m *Memory) column(table, col string, kind Kind) (Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cols, ok := m.tables[table]
	if !ok {
		return Column{}, fmt.Errorf("%w: %s", ErrNoTable, table)
	}
	for _, c := range cols {
		if c.Name != col {
			continue
		}
		if c.Kind != kind {
			return Column{}, fmt.Errorf("%w: %s.%s is %s, not %s", ErrKind, table, col, c.Kind, kind)
		}
		return cloneColumn(c), nil
	}
	return Column{}, fmt.Errorf("%w: %s.%s", ErrNoColumn, table, col)
}

func (m *Memory) replace(table string, next Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cols, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTable, table)
	}
	for i, c := range cols {
		if c.Name != next.Name {
			continue
		}
		if c.Kind != next.Kind {
			return fmt.Errorf("%w: %s.%s is %s, not %s", ErrKind, table, c.Name, c.Kind, next.Kind)
		}
		var err error
		switch c.Kind {
		case FloatCell:
			err = checkFloatShape(c.Name, c.FloatCells, next.FloatCells)
		case BoolCell:
			err = checkBoolShape(c.Name, c.BoolCells, next.BoolCells)
		}
		if err != nil {
			return err
		}
		cols[i] = cloneColumn(next)
		return nil
	}
	return fmt.Errorf("%w: %s.%s", ErrNoColumn, table, next.Name)
}

type memTable struct {
	store  *Memory
	name   string
	mode   Mode
	closed bool
}

func (t *memTable) Name() string { return t.name }

func (t *memTable) NumRows(_ context.Context) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	cols, ok := t.store.tables[t.name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoTable, t.name)
	}
	return cols[0].Len(), nil
}

func (t *memTable) get(col string, kind Kind) (Column, error) {
	if t.closed {
		return Column{}, ErrClosed
	}
	return t.store.column(t.name, col, kind)
}

func (t *memTable) Floats(_ context.Context, col string) ([]float64, error) {
	c, err := t.get(col, Float)
	return c.Floats, err
}

func (t *memTable) Ints(_ context.Context, col string) ([]int, error) {
	c, err := t.get(col, Int)
	return c.Ints, err
}

func (t *memTable) Strings(_ context.Context, col string) ([]string, error) {
	c, err := t.get(col, String)
	return c.Strings, err
}

func (t *memTable) FloatCells(_ context.Context, col string) ([][]float64, error) {
	c, err := t.get(col, FloatCell)
	return c.FloatCells, err
}

func (t *memTable) BoolCells(_ context.Context, col string) ([][]bool, error) {
	c, err := t.get(col, BoolCell)
	return c.BoolCells, err
}

func (t *memTable) writable() error {
	if t.closed {
		return ErrClosed
	}
	if t.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnly, t.name)
	}
	return nil
}

func (t *memTable) PutFloatCells(_ context.Context, col string, v [][]float64) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.store.replace(t.name, Column{Name: col, Kind: FloatCell, FloatCells: v})
}

func (t *memTable) PutBoolCells(_ context.Context, col string, v [][]bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.store.replace(t.name, Column{Name: col, Kind: BoolCell, BoolCells: v})
}

func (t *memTable) Close() error {
	t.closed = true
	return nil
}

func cloneColumn(c Column) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Float:
		out.Floats = append([]float64(nil), c.Floats...)
	case Int:
		out.Ints = append([]int(nil), c.Ints...)
	case String:
		out.Strings = append([]string(nil), c.Strings...)
	case FloatCell:
		out.FloatCells = make([][]float64, len(c.FloatCells))
		for i, cell := range c.FloatCells {
			out.FloatCells[i] = append([]float64(nil), cell...)
		}
	case BoolCell:
		out.BoolCells = make([][]bool, len(c.BoolCells))
		for i, cell := range c.BoolCells {
			out.BoolCells[i] = append([]bool(nil), cell...)
		}
	}
	return out
}
