package forecast_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/forecast-display/internal/diag"
	"github.com/i474232898/forecast-display/internal/forecast"
	"github.com/i474232898/forecast-display/internal/store"
)

type stubFetcher struct {
	doc   string
	err   error
	calls int
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(context.Context) (string, error) {
	f.calls++
	return f.doc, f.err
}

func doc(body string) string {
	return "<x>" + forecast.BlockStart + body + forecast.BlockEnd + "</x>"
}

type harness struct {
	fetcher *stubFetcher
	buffer  *store.SeriesBuffer
	stream  *diag.Stream
	svc     *forecast.Service
}

func newHarness() *harness {
	h := &harness{
		fetcher: &stubFetcher{},
		buffer:  store.NewSeriesBuffer(),
		stream:  diag.NewStream(0),
	}
	h.svc = forecast.NewService(h.fetcher, h.buffer, h.stream, nil)
	return h
}

func TestRunCycleSuccess(t *testing.T) {
	h := newHarness()
	h.fetcher.doc = doc("3.5 bad 2.25 1.0")

	out := h.svc.RunCycle(context.Background())

	require.Equal(t, forecast.OutcomeSuccess, out.Kind)
	assert.NoError(t, out.Err)
	assert.NotEmpty(t, out.CycleID)
	assert.Equal(t, forecast.Series{3.5, 2.25, 1.0}, out.Series)
	assert.Equal(t, 1, h.fetcher.calls)

	assert.Equal(t, forecast.Series{3.5, 2.25, 1.0}, h.buffer.Current())
	assert.Equal(t, 3, h.buffer.Capacity())
	latest, ok := h.buffer.First()
	require.True(t, ok)
	assert.Equal(t, forecast.Reading(3.5), latest)

	assert.Equal(t, 1, h.stream.Count(diag.KindFetchSuccess))
	assert.Equal(t, 1, h.stream.Count(diag.KindTokenDropped))
}

func TestRunCycleEmptyKeepsLastGood(t *testing.T) {
	h := newHarness()
	h.fetcher.doc = doc("1.5 2.5")
	require.Equal(t, forecast.OutcomeSuccess, h.svc.RunCycle(context.Background()).Kind)

	h.fetcher.doc = doc("0 -0 junk")
	out := h.svc.RunCycle(context.Background())

	assert.Equal(t, forecast.OutcomeEmpty, out.Kind)
	assert.ErrorIs(t, out.Err, forecast.ErrNoValidTokens)
	assert.Equal(t, forecast.Series{1.5, 2.5}, h.buffer.Current())
	latest, _ := h.buffer.First()
	assert.Equal(t, forecast.Reading(1.5), latest)

	assert.Equal(t, 1, h.stream.Count(diag.KindNoValidTokens))
	assert.Equal(t, 0, h.stream.Count(diag.KindMarkerMissing))
	assert.Equal(t, 1, h.stream.Count(diag.KindFetchEmpty))
}

func TestRunCycleMarkerMissingIsReportedSeparately(t *testing.T) {
	h := newHarness()
	h.fetcher.doc = `<ExceptionReport><Exception exceptionCode="InvalidParameterValue"/></ExceptionReport>`

	out := h.svc.RunCycle(context.Background())

	assert.Equal(t, forecast.OutcomeEmpty, out.Kind)
	assert.ErrorIs(t, out.Err, forecast.ErrMarkerNotFound)
	assert.Empty(t, h.buffer.Current())
	_, ok := h.buffer.First()
	assert.False(t, ok)

	events := h.stream.Events()
	require.Len(t, events, 2)
	assert.Equal(t, diag.KindMarkerMissing, events[0].Kind)
	assert.Equal(t, true, events[0].Fields["upstream_exception"])
	assert.Equal(t, diag.KindFetchEmpty, events[1].Kind)
	assert.Equal(t, out.CycleID, events[0].CycleID)
}

func TestRunCycleTransportFailure(t *testing.T) {
	h := newHarness()
	h.fetcher.doc = doc("4.0")
	h.svc.RunCycle(context.Background())

	h.fetcher.err = &forecast.TransportError{Code: 503}
	out := h.svc.RunCycle(context.Background())

	assert.Equal(t, forecast.OutcomeNetworkError, out.Kind)
	assert.Equal(t, 503, out.Code)
	assert.ErrorIs(t, out.Err, forecast.ErrTransport)
	assert.Equal(t, forecast.Series{4.0}, h.buffer.Current())
	assert.Equal(t, 1, h.stream.Count(diag.KindFetchError))
}

func TestRunCycleUntypedErrorHasNoCode(t *testing.T) {
	h := newHarness()
	h.fetcher.err = errors.New("dial tcp: connection refused")

	out := h.svc.RunCycle(context.Background())

	assert.Equal(t, forecast.OutcomeNetworkError, out.Kind)
	assert.Equal(t, -1, out.Code)
	assert.Empty(t, h.buffer.Current())
}

func TestRunCycleFlagsOnlyExceptionDocuments(t *testing.T) {
	h := newHarness()
	h.fetcher.doc = `<wfs:FeatureCollection numberMatched="0"></wfs:FeatureCollection>`

	out := h.svc.RunCycle(context.Background())

	assert.ErrorIs(t, out.Err, forecast.ErrMarkerNotFound)
	events := h.stream.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, diag.KindMarkerMissing, events[0].Kind)
	assert.Nil(t, events[0].Fields["upstream_exception"])
}

func TestTransportErrorMessage(t *testing.T) {
	err := &forecast.TransportError{Code: 404}
	assert.Contains(t, err.Error(), "code 404")

	inner := errors.New("timeout")
	err = &forecast.TransportError{Code: -1, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.ErrorIs(t, err, forecast.ErrTransport)
}
