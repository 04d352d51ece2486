package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

// scriptedClient returns one canned response per call, in order.
type scriptedClient struct {
	responses []catalog.DetailResponse
	errs      []error
	calls     int
}

func (c *scriptedClient) AppDetails(_ context.Context, _ catalog.AppID) (catalog.DetailResponse, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var resp catalog.DetailResponse
	if i < len(c.responses) {
		resp = c.responses[i]
	}
	return resp, err
}

// recordingNotifier captures waits and outcomes for assertions.
type recordingNotifier struct {
	waits    []time.Duration
	outcomes []catalog.Outcome
}

func (n *recordingNotifier) FetchWait(_ catalog.AppID, wait time.Duration, _ string) {
	n.waits = append(n.waits, wait)
}

func (n *recordingNotifier) FetchDone(_ catalog.AppID, outcome catalog.Outcome, _ string) {
	n.outcomes = append(n.outcomes, outcome)
}

func newTestFetcher(client catalog.DetailClient, slept *[]time.Duration) *Fetcher {
	f := New(client, Config{
		RateLimitWait: 10 * time.Second,
		BlockedWait:   5 * time.Minute,
	}, nil)
	f.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return f
}

// TestFetchSuccess verifies a 200 with success=true yields the record.
func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []catalog.DetailResponse{
		{StatusCode: http.StatusOK, Success: true, Data: catalog.Record{"name": "Portal 2"}},
	}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	result, err := f.Fetch(context.Background(), 620, nil)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeFetched, result.Outcome)
	require.Equal(t, "Portal 2", result.Record.Name())
	require.Empty(t, slept)
}

// TestFetchSuccessFalse verifies a 200 with success=false is excluded,
// not retried.
func TestFetchSuccessFalse(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []catalog.DetailResponse{
		{StatusCode: http.StatusOK, Success: false},
	}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	notify := &recordingNotifier{}
	result, err := f.Fetch(context.Background(), 620, notify)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeExcluded, result.Outcome)
	require.Nil(t, result.Record)
	require.Equal(t, []catalog.Outcome{catalog.OutcomeExcluded}, notify.outcomes)
}

// TestFetchRateLimitedThenSuccess verifies a 429 waits the fixed
// interval and retries until success.
func TestFetchRateLimitedThenSuccess(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []catalog.DetailResponse{
		{StatusCode: http.StatusTooManyRequests},
		{StatusCode: http.StatusTooManyRequests},
		{StatusCode: http.StatusOK, Success: true, Data: catalog.Record{"name": "late"}},
	}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	notify := &recordingNotifier{}
	result, err := f.Fetch(context.Background(), 440, notify)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeFetched, result.Outcome)
	require.Equal(t, 3, client.calls)
	require.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, slept)
	require.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, notify.waits)
}

// TestFetchForbiddenThenSuccess verifies a 403 takes the longer wait.
func TestFetchForbiddenThenSuccess(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []catalog.DetailResponse{
		{StatusCode: http.StatusForbidden},
		{StatusCode: http.StatusOK, Success: true, Data: catalog.Record{"name": "unblocked"}},
	}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	result, err := f.Fetch(context.Background(), 440, nil)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeFetched, result.Outcome)
	require.Equal(t, []time.Duration{5 * time.Minute}, slept)
}

// TestFetchUnexpectedStatus verifies other statuses fail without retry.
func TestFetchUnexpectedStatus(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []catalog.DetailResponse{
		{StatusCode: http.StatusInternalServerError},
	}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	notify := &recordingNotifier{}
	result, err := f.Fetch(context.Background(), 440, notify)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeFailed, result.Outcome)
	require.Equal(t, 1, client.calls)
	require.Empty(t, slept)
	require.Equal(t, []catalog.Outcome{catalog.OutcomeFailed}, notify.outcomes)
}

// TestFetchTransportError verifies a client error without cancellation
// is a failed outcome, not a returned error.
func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{errors.New("connection reset")}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	result, err := f.Fetch(context.Background(), 440, nil)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeFailed, result.Outcome)
}

// TestFetchContextCancelled verifies cancellation surfaces as the
// context's error.
func TestFetchContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{errs: []error{ctx.Err()}}
	var slept []time.Duration
	f := newTestFetcher(client, &slept)

	_, err := f.Fetch(ctx, 440, nil)
	require.ErrorIs(t, err, context.Canceled)
}
