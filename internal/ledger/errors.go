package ledger

import "fmt"

// ConflictError is returned by Open when the pair is already at its position limit.
type ConflictError struct {
	Pair string
	Open int
	Max  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ledger: %s already holds %d/%d open positions", e.Pair, e.Open, e.Max)
}

// NotFoundError is returned by Close when no open position has the given id.
type NotFoundError struct {
	Pair string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ledger: no open position %s for %s", e.ID, e.Pair)
}

// PersistenceError means the durable store could not be read, written or
// verified. Unless Applied is set the portfolio is as it was before the call.
// Applied means portfolio.json holds the change but trades.json lacks its record.
type PersistenceError struct {
	Op      string
	Err     error
	Applied bool
}

func (e *PersistenceError) Error() string {
	if e.Applied {
		return fmt.Sprintf("ledger: %s: %v (portfolio already updated)", e.Op, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
