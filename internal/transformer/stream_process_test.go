package transformer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"emailextract/internal/schema"
	"emailextract/pkg/records"
)

// countingSetup wraps a step and counts Setup calls.
type countingSetup struct {
	Step
	mu     sync.Mutex
	setups int
}

func (c *countingSetup) Setup(in schema.Schema) error {
	c.mu.Lock()
	c.setups++
	c.mu.Unlock()
	return c.Step.Setup(in)
}

func feed(recs ...records.Record) <-chan records.Record {
	ch := make(chan records.Record, len(recs))
	for _, r := range recs {
		ch <- r
	}
	close(ch)
	return ch
}

func drain(ch <-chan records.Record) []records.Record {
	var out []records.Record
	for r := range ch {
		out = append(out, r)
	}
	return out
}

// TestProcessLoop_SetupOnceAndOrder verifies lazy one-time setup and that
// all outputs of one input precede the outputs of the next.
func TestProcessLoop_SetupOnceAndOrder(t *testing.T) {
	t.Parallel()

	step := &countingSetup{Step: splitStep{}}
	src := feed(records.New(1, "a b"), records.New(2, "c"), records.New(3, "d e"))
	out := make(chan records.Record, 16)

	if err := ProcessLoop(context.Background(), step, schema.FromNames("w"), src, out, nil); err != nil {
		t.Fatalf("ProcessLoop: %v", err)
	}
	close(out)

	var got []string
	for _, r := range drain(out) {
		got = append(got, r.V[0].(string))
	}
	if want := []string{"a", "b", "c", "d", "e"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if step.setups != 1 {
		t.Fatalf("setups = %d, want 1", step.setups)
	}
}

// TestProcessLoop_NoRecordsNoSetup verifies that an empty stream never calls
// Setup.
func TestProcessLoop_NoRecordsNoSetup(t *testing.T) {
	t.Parallel()

	step := &countingSetup{Step: failingStep{setupErr: errors.New("must not run")}}
	out := make(chan records.Record)
	if err := ProcessLoop(context.Background(), step, schema.Schema{}, feed(), out, nil); err != nil {
		t.Fatalf("ProcessLoop: %v", err)
	}
	if step.setups != 0 {
		t.Fatalf("setups = %d, want 0", step.setups)
	}
}

func TestProcessLoop_SetupFailureAbortsBeforeEmit(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad pattern")
	out := make(chan records.Record, 4)
	err := ProcessLoop(context.Background(), failingStep{setupErr: boom}, schema.Schema{}, feed(records.New(1, "x")), out, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if len(out) != 0 {
		t.Fatalf("emitted %d records before setup failure", len(out))
	}
}

func TestProcessLoop_ProcessErrorsAreSoft(t *testing.T) {
	t.Parallel()

	boom := errors.New("row failed")
	var lines []int
	onErr := func(line int, err error) {
		if !errors.Is(err, boom) {
			t.Errorf("onErr got %v, want boom", err)
		}
		lines = append(lines, line)
	}

	out := make(chan records.Record, 4)
	src := feed(records.New(5, "x"), records.New(6, "y"))
	if err := ProcessLoop(context.Background(), failingStep{processErr: boom}, schema.Schema{}, src, out, onErr); err != nil {
		t.Fatalf("ProcessLoop: %v", err)
	}
	if !reflect.DeepEqual(lines, []int{5, 6}) {
		t.Fatalf("error lines = %v, want [5 6]", lines)
	}
}

func TestProcessLoop_CancelUnblocks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan records.Record, 1)
	src <- records.New(1, "a b c")
	out := make(chan records.Record) // nobody reads

	done := make(chan error, 1)
	go func() {
		done <- ProcessLoop(ctx, splitStep{}, schema.FromNames("w"), src, out, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ProcessLoop did not return after cancel")
	}
}
