package table

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func gainColumns() []Column {
	return []Column{
		{Name: "TIME", Kind: Float, Floats: []float64{10, 10, 11}},
		{Name: "ANTENNA1", Kind: Int, Ints: []int{0, 1, 0}},
		{Name: "NAME", Kind: String, Strings: []string{"ea01", "ea02", "ea01"}},
		{Name: "FPARAM", Kind: FloatCell, FloatCells: [][]float64{{1, 0, 2, 0}, {3, 0, 4, 0}, {5, 0, 6, 0}}},
		{Name: "FLAG", Kind: BoolCell, BoolCells: [][]bool{{false, false, false, false}, {true, false, false, false}, {false, false, false, true}}},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "obs.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { lite.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": lite}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, "rq.cal", gainColumns()); err != nil {
				t.Fatalf("create: %v", err)
			}
			tb, err := store.Open(ctx, "rq.cal", ReadOnly)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer tb.Close()

			n, err := tb.NumRows(ctx)
			if err != nil || n != 3 {
				t.Fatalf("rows = %d, %v", n, err)
			}
			times, err := tb.Floats(ctx, "TIME")
			if err != nil || times[2] != 11 {
				t.Fatalf("TIME = %v, %v", times, err)
			}
			ants, err := tb.Ints(ctx, "ANTENNA1")
			if err != nil || ants[1] != 1 {
				t.Fatalf("ANTENNA1 = %v, %v", ants, err)
			}
			names, err := tb.Strings(ctx, "NAME")
			if err != nil || names[1] != "ea02" {
				t.Fatalf("NAME = %v, %v", names, err)
			}
			par, err := tb.FloatCells(ctx, "FPARAM")
			if err != nil || par[1][2] != 4 {
				t.Fatalf("FPARAM = %v, %v", par, err)
			}
			flags, err := tb.BoolCells(ctx, "FLAG")
			if err != nil || !flags[2][3] || flags[2][0] {
				t.Fatalf("FLAG = %v, %v", flags, err)
			}
			if _, err := tb.Ints(ctx, "TIME"); !errors.Is(err, ErrKind) {
				t.Fatalf("expected kind mismatch, got %v", err)
			}
			if _, err := tb.Floats(ctx, "MISSING"); !errors.Is(err, ErrNoColumn) {
				t.Fatalf("expected ErrNoColumn, got %v", err)
			}
		})
	}
}

func TestStorePutColumns(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, "rq.cal", gainColumns()); err != nil {
				t.Fatal(err)
			}
			ro, err := store.Open(ctx, "rq.cal", ReadOnly)
			if err != nil {
				t.Fatal(err)
			}
			if err := ro.PutFloatCells(ctx, "FPARAM", [][]float64{{0}, {0}, {0}}); !errors.Is(err, ErrReadOnly) {
				t.Fatalf("expected ErrReadOnly, got %v", err)
			}
			ro.Close()

			rw, err := store.Open(ctx, "rq.cal", ReadWrite)
			if err != nil {
				t.Fatal(err)
			}
			defer rw.Close()

			next := [][]float64{{9, 0, 8, 0}, {7, 0, 6, 0}, {5, 0, 4, 0}}
			if err := rw.PutFloatCells(ctx, "FPARAM", next); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := rw.FloatCells(ctx, "FPARAM")
			if err != nil || got[0][0] != 9 || got[2][2] != 4 {
				t.Fatalf("FPARAM after put = %v, %v", got, err)
			}
			if err := rw.PutBoolCells(ctx, "FLAG", [][]bool{{true, true, true, true}, {}, {}}); !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("expected ErrShapeMismatch for cell width, got %v", err)
			}
			if err := rw.PutFloatCells(ctx, "FPARAM", next[:2]); !errors.Is(err, ErrShapeMismatch) {
				t.Fatalf("expected ErrShapeMismatch for row count, got %v", err)
			}
		})
	}
}

func TestStoreCopyIsIndependent(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Create(ctx, "rq.cal", gainColumns()); err != nil {
				t.Fatal(err)
			}
			if err := store.Copy(ctx, "rq.cal", "rq.cal.template"); err != nil {
				t.Fatalf("copy: %v", err)
			}
			dst, err := store.Open(ctx, "rq.cal.template", ReadWrite)
			if err != nil {
				t.Fatal(err)
			}
			if err := dst.PutFloatCells(ctx, "FPARAM", [][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}}); err != nil {
				t.Fatal(err)
			}
			dst.Close()

			src, err := store.Open(ctx, "rq.cal", ReadOnly)
			if err != nil {
				t.Fatal(err)
			}
			defer src.Close()
			par, err := src.FloatCells(ctx, "FPARAM")
			if err != nil || par[0][0] != 1 {
				t.Fatalf("source changed by copy write: %v %v", par, err)
			}
			names, err := src.Strings(ctx, "NAME")
			if err != nil || len(names) != 3 {
				t.Fatalf("NAME = %v, %v", names, err)
			}

			if err := store.Copy(ctx, "nope", "x"); !errors.Is(err, ErrNoTable) {
				t.Fatalf("expected ErrNoTable, got %v", err)
			}
		})
	}
}

func TestCreateRejectsRaggedColumns(t *testing.T) {
	cols := gainColumns()
	cols[0].Floats = cols[0].Floats[:2]
	if err := NewMemory().Create(context.Background(), "bad", cols); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestClosedTable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, "t", gainColumns()); err != nil {
		t.Fatal(err)
	}
	tb, _ := m.Open(ctx, "t", ReadOnly)
	tb.Close()
	if _, err := tb.Floats(ctx, "TIME"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := m.Open(ctx, "missing", ReadOnly); !errors.Is(err, ErrNoTable) {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}
