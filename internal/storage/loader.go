// This file implements a generic, batched loader that drains transformed
// records from a channel, projects them onto the sink columns and invokes a
// bulk-insert function (CopyFn) per batch.
//
// Logging: on every successful flush, a concise progress line is emitted with
// running totals and instantaneous rows/sec since the previous flush.

package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// the provided rows (aligned to columns) and return the number of rows
// reported as inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// Projection maps records of one schema onto an ordered list of sink columns.
type Projection struct {
	Columns []string
	pos     []int
}

// NewProjection resolves columns against s. An empty column list selects every
// field of s in schema order.
func NewProjection(s schema.Schema, columns []string) (Projection, error) {
	if len(columns) == 0 {
		columns = s.Names()
	}
	if len(columns) == 0 {
		return Projection{}, fmt.Errorf("storage: no columns to load")
	}
	p := Projection{Columns: append([]string(nil), columns...), pos: make([]int, len(columns))}
	for i, c := range columns {
		pos, ok := schema.Resolve(s, c)
		if !ok {
			return Projection{}, fmt.Errorf("storage: column %q not in output schema %v", c, s.Names())
		}
		p.pos[i] = pos
	}
	return p, nil
}

// Row returns the projected values of r. Missing slots yield nil.
func (p Projection) Row(r records.Record) []any {
	row := make([]any, len(p.pos))
	for i, pos := range p.pos {
		row[i] = r.Get(pos)
	}
	return row
}

// LoadBatches drains records from in, groups them into batches of batchSize
// and calls copyFn for each non-empty batch. It returns the total number of
// rows reported by copyFn and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled.
func LoadBatches(
	ctx context.Context,
	p Projection,
	in <-chan records.Record,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total       int64
		batches     int64
		batch       = make([][]any, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, p.Columns, batch)
		total += n

		// A fresh slice per batch; copyFn may retain rows.
		batch = make([][]any, 0, batchSize)

		if err != nil {
			log.Printf("loader: copy failed after=%d total=%d err=%v", n, total, err)
			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(total-lastTotal) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			batches,
			rps,
			n,
			total,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case rec, ok := <-in:
			if !ok {
				pending := len(batch)
				if err := flush(); err != nil {
					return total, err
				}
				log.Printf("loader: input closed, final_flush=%d total_inserted=%d", pending, total)
				return total, nil
			}
			batch = append(batch, p.Row(rec))
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
