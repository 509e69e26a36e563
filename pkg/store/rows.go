package store

import (
	"errors"
	"fmt"

	"sharddb/pkg/dberrors"
)

var errNoRow = errors.New("store: Scan called without a current row")

// SliceRows serves an already materialized result as Rows.
type SliceRows struct {
	rows   [][]int64
	pos    int
	closed bool
}

func NewSliceRows(rows [][]int64) *SliceRows {
	return &SliceRows{rows: rows, pos: -1}
}

func (r *SliceRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *SliceRows) Scan(dest ...any) error {
	if r.closed {
		return dberrors.ErrClosed
	}
	if r.pos < 0 || r.pos >= len(r.rows) {
		return errNoRow
	}
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("store: expected %d destination arguments in Scan, not %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = row[i]
		case *int:
			*p = int(row[i])
		case *any:
			*p = row[i]
		default:
			return fmt.Errorf("store: unsupported Scan destination %T", d)
		}
	}
	return nil
}

func (r *SliceRows) Err() error { return nil }

func (r *SliceRows) Close() error {
	r.closed = true
	return nil
}

// Collect drains rows into a slice and closes them.
func Collect(rows Rows, width int) ([][]int64, error) {
	defer rows.Close()

	var out [][]int64
	for rows.Next() {
		row := make([]int64, width)
		dest := make([]any, width)
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
