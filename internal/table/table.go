// Package table is the columnar store the correction reads its inputs from
// and writes calibration results back to. Tables are row ordered; scalar
// columns hold one value per row and cell columns a small array per row
// (one entry per polarization or parameter).
package table

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoTable       = errors.New("table: no such table")
	ErrNoColumn      = errors.New("table: no such column")
	ErrShapeMismatch = errors.New("table: shape mismatch")
	ErrReadOnly      = errors.New("table: opened read-only")
	ErrKind          = errors.New("table: column kind mismatch")
	ErrClosed        = errors.New("table: closed")
)

// Mode selects how a table is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Kind is the storage type of a column.
type Kind int

const (
	Float Kind = iota
	Int
	String
	FloatCell
	BoolCell
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "FLOAT"
	case Int:
		return "INT"
	case String:
		return "STRING"
	case FloatCell:
		return "FLOATCELL"
	case BoolCell:
		return "BOOLCELL"
	default:
		return "UNKNOWN"
	}
}

// Column is a named column with its data. Only the slice matching Kind is used.
type Column struct {
	Name       string
	Kind       Kind
	Floats     []float64
	Ints       []int
	Strings    []string
	FloatCells [][]float64
	BoolCells  [][]bool
}

// Len returns the number of rows held by the column.
func (c Column) Len() int {
	switch c.Kind {
	case Float:
		return len(c.Floats)
	case Int:
		return len(c.Ints)
	case String:
		return len(c.Strings)
	case FloatCell:
		return len(c.FloatCells)
	case BoolCell:
		return len(c.BoolCells)
	default:
		return 0
	}
}

// Table is an open handle on one table.
type Table interface {
	Name() string
	NumRows(ctx context.Context) (int, error)
	Floats(ctx context.Context, col string) ([]float64, error)
	Ints(ctx context.Context, col string) ([]int, error)
	Strings(ctx context.Context, col string) ([]string, error)
	FloatCells(ctx context.Context, col string) ([][]float64, error)
	BoolCells(ctx context.Context, col string) ([][]bool, error)
	// PutFloatCells and PutBoolCells overwrite a whole cell column in place.
	// The row count and every cell width must match the stored column.
	PutFloatCells(ctx context.Context, col string, v [][]float64) error
	PutBoolCells(ctx context.Context, col string, v [][]bool) error
	Close() error
}

// Store opens, creates and copies tables.
type Store interface {
	Open(ctx context.Context, name string, mode Mode) (Table, error)
	// Create replaces any table of the same name.
	Create(ctx context.Context, name string, cols []Column) error
	// Copy duplicates src, schema and rows, under dst, replacing dst.
	Copy(ctx context.Context, src, dst string) error
	Close() error
}

func validateColumns(name string, cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("table %s: no columns", name)
	}
	rows := cols[0].Len()
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return fmt.Errorf("table %s: empty column name", name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		seen[c.Name] = true
		if c.Len() != rows {
			return fmt.Errorf("%w: table %s column %s has %d rows, want %d", ErrShapeMismatch, name, c.Name, c.Len(), rows)
		}
	}
	return nil
}

func checkFloatShape(col string, have [][]float64, put [][]float64) error {
	if len(have) != len(put) {
		return fmt.Errorf("%w: column %s has %d rows, got %d", ErrShapeMismatch, col, len(have), len(put))
	}
	for i := range have {
		if len(have[i]) != len(put[i]) {
			return fmt.Errorf("%w: column %s row %d has %d entries, got %d", ErrShapeMismatch, col, i, len(have[i]), len(put[i]))
		}
	}
	return nil
}

func checkBoolShape(col string, have [][]bool, put [][]bool) error {
	if len(have) != len(put) {
		return fmt.Errorf("%w: column %s has %d rows, got %d", ErrShapeMismatch, col, len(have), len(put))
	}
	for i := range have {
		if len(have[i]) != len(put[i]) {
			return fmt.Errorf("%w: column %s row %d has %d entries, got %d", ErrShapeMismatch, col, i, len(have[i]), len(put[i]))
		}
	}
	return nil
}
