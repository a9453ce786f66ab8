package saga

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tunecrate/internal/logging"
)

// UndoFunc reverses one side effect
type UndoFunc func(ctx context.Context) error

type undoRecord struct {
	name string
	undo UndoFunc
}

// Compensator is an ordered stack of undo records. A record is pushed right
// after its side effect succeeds and the stack is unwound newest first.
type Compensator struct {
	records   []undoRecord
	logger    *zerolog.Logger
	onFailure func(step string, err error)
}

// NewCompensator creates an empty undo stack
func NewCompensator(logger *zerolog.Logger) *Compensator {
	if logger == nil {
		logger = logging.WithModule("saga")
	}
	return &Compensator{logger: logger}
}

// OnFailure registers a hook called for every undo step that fails
func (c *Compensator) OnFailure(fn func(step string, err error)) {
	c.onFailure = fn
}

// Push records how to undo a side effect that just happened
func (c *Compensator) Push(name string, undo UndoFunc) {
	c.records = append(c.records, undoRecord{name: name, undo: undo})
}

// Steps lists the pending undo steps in push order
func (c *Compensator) Steps() []string {
	names := make([]string, len(c.records))
	for i, r := range c.records {
		names[i] = r.name
	}
	return names
}

// Len returns the number of pending undo steps
func (c *Compensator) Len() int {
	return len(c.records)
}

// Unwind runs every pending undo step in reverse order and empties the
// stack. Failures are logged and counted, never returned, so the error that
// triggered the unwind stays the one the caller sees.
func (c *Compensator) Unwind(ctx context.Context) int {
	failed := 0
	log := logging.NewLoggerFrom(logging.FromContext(ctx, *c.logger))

	for i := len(c.records) - 1; i >= 0; i-- {
		record := c.records[i]
		if err := runUndo(ctx, record); err != nil {
			failed++
			log.LogCompensationFailure(record.name, err)
			if c.onFailure != nil {
				c.onFailure(record.name, err)
			}
		}
	}

	c.records = nil
	return failed
}

func runUndo(ctx context.Context, record undoRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("undo step panicked: %v", r)
		}
	}()
	return record.undo(ctx)
}
