package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrMarkerNotFound means the document has no delimited data block.
	ErrMarkerNotFound = errors.New("forecast data block not found")

	// ErrNoValidTokens means the data block was present but nothing in it parsed.
	ErrNoValidTokens = errors.New("forecast data block has no valid readings")

	// ErrTransport is the umbrella for failed requests and non-success responses.
	ErrTransport = errors.New("forecast transport failure")
)

// TransportError carries the response code of a failed fetch. Code is -1
// when no response was received at all.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: code %d", ErrTransport, e.Code)
	}
	return fmt.Sprintf("%v: code %d: %v", ErrTransport, e.Code, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}
