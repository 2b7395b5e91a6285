package transformer

import (
	"context"
	"fmt"

	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// ProcessLoop reads records from in and drives step with them, sending
// every emitted record to out. It returns when in is closed (end of stream)
// or ctx is canceled.
//
// Setup happens lazily, exactly once, when the first record arrives; a
// setup failure aborts the loop before anything is emitted. The step is
// driven synchronously: all outputs for one input are sent before the next
// input is read.
//
// Per-record Process errors are soft: they are reported through onErr and
// the loop moves on. The caller owns out and closes it after ProcessLoop
// returns.
func ProcessLoop(
	ctx context.Context,
	step Step,
	in schema.Schema,
	src <-chan records.Record,
	out chan<- records.Record,
	onErr func(line int, err error),
) error {
	emit := func(r records.Record) error {
		select {
		case out <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ready := false
	for {
		var (
			rec records.Record
			ok  bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok = <-src:
		}
		if !ok {
			return nil
		}

		if !ready {
			if err := step.Setup(in); err != nil {
				return fmt.Errorf("step setup: %w", err)
			}
			ready = true
		}

		if err := step.Process(rec, emit); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if onErr != nil {
				onErr(rec.Line, err)
			}
		}
	}
}
