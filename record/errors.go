package record

import (
	"errors"
	"fmt"
)

// ErrPageClosed is returned when the page target goes away mid-session.
var ErrPageClosed = errors.New("record: page closed")

// ErrBatchFailures marks a batch that completed with at least one failed
// folder. The concrete error is always a *BatchError.
var ErrBatchFailures = errors.New("record: batch completed with failures")

// BatchError carries the failure count so main can map it to an exit status
// without parsing strings. errors.Is(err, ErrBatchFailures) matches it.
type BatchError struct {
	Failed int
	Total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("record: %d of %d folders failed", e.Failed, e.Total)
}

func (e *BatchError) Is(target error) bool { return target == ErrBatchFailures }
