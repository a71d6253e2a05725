package bitvavo

import "fmt"

// FeedError is a failed market data or order call. The caller aborts the
// pair's cycle and tries again on the next one.
type FeedError struct {
	Op   string
	Pair string
	Err  error
}

func (e *FeedError) Error() string {
	if e.Pair == "" {
		return fmt.Sprintf("bitvavo %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bitvavo %s %s: %v", e.Op, e.Pair, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// APIError is an error body returned by the REST API.
type APIError struct {
	Status  int
	Code    int    `json:"errorCode"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: code=%d %s", e.Status, e.Code, e.Message)
}
