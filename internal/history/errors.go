package history

import "fmt"

// QueryError wraps a failure of the log source or block source.
type QueryError struct {
	Family string
	// Block is set for single-block lookups.
	Block uint64
	Err   error
}

func (e *QueryError) Error() string {
	if e.Block > 0 {
		return fmt.Sprintf("query %s at block %d: %v", e.Family, e.Block, e.Err)
	}
	return fmt.Sprintf("query %s: %v", e.Family, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
