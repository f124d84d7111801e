package httpclient

import (
	"errors"
	"fmt"
)

const bodyExcerptLen = 256

// ErrResponseTooLarge is a response body over the client's size limit.
var ErrResponseTooLarge = errors.New("response too large")

// TransportError is a provider call that failed on the network or returned a
// non-2xx status.
type TransportError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Operation, e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		excerpt := string(e.Body)
		if len(excerpt) > bodyExcerptLen {
			excerpt = excerpt[:bodyExcerptLen] + "..."
		}
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, excerpt)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
