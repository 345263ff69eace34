package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/forecast-display/internal/forecast"
)

// DefaultFMIURL is the Harmonie surface point forecast for Jorvi, Espoo.
const DefaultFMIURL = "https://opendata.fmi.fi/wfs?service=WFS&version=2.0.0&request=getFeature&storedquery_id=fmi::forecast::harmonie::surface::point::multipointcoverage&place=Jorvi,Espoo&parameters=Temperature"

// maxBody caps how much of a response is read into memory.
const maxBody = 8 << 20

var (
	errNoHTTPClient = errors.New("http client not configured")
	errCircuitOpen  = errors.New("circuit breaker open")
)

// FMIProvider fetches forecast documents from the FMI open data WFS service.
type FMIProvider struct {
	name    string
	url     string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewFMIProvider creates a provider for url. The circuit breaker only opens
// after tripAfter consecutive failures; tripAfter <= 0 keeps it closed, so
// every cycle issues its request.
func NewFMIProvider(client *http.Client, url string, tripAfter uint32) *FMIProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fmi",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return tripAfter > 0 && c.ConsecutiveFailures >= tripAfter
		},
	})

	return &FMIProvider{
		name:    "fmi",
		url:     url,
		client:  client,
		circuit: cb,
	}
}

func (p *FMIProvider) Name() string {
	return p.name
}

// Counts exposes the breaker's request counters.
func (p *FMIProvider) Counts() gobreaker.Counts {
	return p.circuit.Counts()
}

// State exposes the breaker state.
func (p *FMIProvider) State() gobreaker.State {
	return p.circuit.State()
}

// Fetch issues one GET and returns the response body as text.
func (p *FMIProvider) Fetch(ctx context.Context) (string, error) {
	if p.client == nil {
		return "", &forecast.TransportError{Code: -1, Err: errNoHTTPClient}
	}

	result, err := p.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return nil, &forecast.TransportError{Code: -1, Err: err}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, &forecast.TransportError{Code: -1, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
			return nil, &forecast.TransportError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, &forecast.TransportError{Code: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
		}
		return string(body), nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &forecast.TransportError{Code: -1, Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}
		return "", err
	}

	doc, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type from circuit breaker")
	}
	return doc, nil
}
