package forecast

import "context"

// Fetcher retrieves one raw forecast document. Implementations issue a
// single request per call and do not retry.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (string, error)
}

// SeriesStore is the contract the series buffer must satisfy. Replace
// publishes the series and its first reading as the headline in one swap,
// and reports whether anything was swapped.
type SeriesStore interface {
	Replace(s Series) bool
}
