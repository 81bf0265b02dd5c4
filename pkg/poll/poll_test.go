package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/proximl/pkg/client"
)

type item struct {
	id     string
	status string
}

func (i item) ID() string     { return i.id }
func (i item) Status() string { return i.status }

var storageSpec = Spec{
	Kind:     "dataset",
	Valid:    []string{"downloading", "ready", "archived"},
	Terminal: "archived",
	Failed:   "failed",
}

type fakeRefresher struct {
	results []item
	errs    []error
	calls   int
}

func (f *fakeRefresher) refresh(ctx context.Context) (item, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return item{}, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return f.results[len(f.results)-1], nil
}

func newTestPoller() (*Poller, *[]time.Duration) {
	var sleeps []time.Duration
	p := New(WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))
	return p, &sleeps
}

func TestInterval(t *testing.T) {
	tests := []struct {
		timeout  time.Duration
		interval time.Duration
		budget   int
	}{
		{60 * time.Second, 5 * time.Second, 12},
		{300 * time.Second, 5 * time.Second, 60},
		{600 * time.Second, 10 * time.Second, 60},
		{2 * time.Hour, 60 * time.Second, 120},
		{7 * time.Second, 5 * time.Second, 2},
	}

	for _, tt := range tests {
		if got := Interval(tt.timeout); got != tt.interval {
			t.Errorf("Interval(%v) = %v; want %v", tt.timeout, got, tt.interval)
		}
		if got := Budget(tt.timeout); got != tt.budget {
			t.Errorf("Budget(%v) = %d; want %d", tt.timeout, got, tt.budget)
		}
	}
}

func TestUntil_AlreadyAtTarget(t *testing.T) {
	p, sleeps := newTestPoller()
	f := &fakeRefresher{}

	got, err := Until(context.Background(), p, storageSpec, item{"d1", "ready"}, "ready", DefaultTimeout, f.refresh)
	require.NoError(t, err)

	assert.Equal(t, item{"d1", "ready"}, got)
	assert.Zero(t, f.calls)
	assert.Empty(t, *sleeps)
}

func TestUntil_InvalidTarget(t *testing.T) {
	p, sleeps := newTestPoller()
	f := &fakeRefresher{}

	_, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "bogus", DefaultTimeout, f.refresh)

	var specErr *client.SpecificationError
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "status", specErr.Attribute)
	assert.Zero(t, f.calls)
	assert.Empty(t, *sleeps)
}

func TestUntil_TimeoutTooLong(t *testing.T) {
	p, _ := newTestPoller()
	f := &fakeRefresher{}

	_, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "ready", MaxTimeout+time.Second, f.refresh)

	var specErr *client.SpecificationError
	require.ErrorAs(t, err, &specErr)
	assert.Equal(t, "timeout", specErr.Attribute)
	assert.Zero(t, f.calls)
}

func TestUntil_Reaches(t *testing.T) {
	p, sleeps := newTestPoller()
	f := &fakeRefresher{results: []item{{"d1", "downloading"}, {"d1", "downloading"}, {"d1", "ready"}}}

	got, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "ready", 60*time.Second, f.refresh)
	require.NoError(t, err)

	assert.Equal(t, "ready", got.Status())
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, *sleeps)
}

func TestUntil_ArchivedNotFound(t *testing.T) {
	p, _ := newTestPoller()
	notFound := &client.APIError{Status: 404, Message: "not found"}
	f := &fakeRefresher{errs: []error{notFound, notFound}}

	got, err := Until(context.Background(), p, storageSpec, item{"d1", "ready"}, "archived", DefaultTimeout, f.refresh)
	require.NoError(t, err)

	assert.Equal(t, item{}, got)
	assert.Equal(t, 1, f.calls)
}

func TestUntil_NotFoundOtherTarget(t *testing.T) {
	p, _ := newTestPoller()
	notFound := &client.APIError{Status: 404, Message: "not found"}
	f := &fakeRefresher{errs: []error{notFound}}

	_, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "ready", DefaultTimeout, f.refresh)
	assert.Same(t, notFound, err)
}

func TestUntil_APIErrorPropagates(t *testing.T) {
	p, _ := newTestPoller()
	serverErr := &client.APIError{Status: 500, Message: "boom"}
	f := &fakeRefresher{errs: []error{serverErr}}

	_, err := Until(context.Background(), p, storageSpec, item{"d1", "ready"}, "archived", DefaultTimeout, f.refresh)
	assert.Same(t, serverErr, err)
}

func TestUntil_FailedShortCircuit(t *testing.T) {
	p, _ := newTestPoller()
	f := &fakeRefresher{results: []item{{"d1", "downloading"}, {"d1", "failed"}}}

	got, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "ready", DefaultTimeout, f.refresh)

	var entityErr *client.EntityError
	require.ErrorAs(t, err, &entityErr)
	assert.Equal(t, "dataset", entityErr.Kind)
	assert.Equal(t, "failed", entityErr.Status)
	assert.Equal(t, "d1", entityErr.Entity)
	assert.Equal(t, "failed", got.Status())
	assert.Equal(t, 2, f.calls)
}

func TestUntil_Timeout(t *testing.T) {
	p, sleeps := newTestPoller()
	f := &fakeRefresher{results: []item{{"d1", "downloading"}}}

	_, err := Until(context.Background(), p, storageSpec, item{"d1", "new"}, "ready", 60*time.Second, f.refresh)

	var timeoutErr *client.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "ready", timeoutErr.Target)
	assert.Contains(t, err.Error(), "ready")
	assert.Equal(t, 12, f.calls)
	assert.Len(t, *sleeps, 12)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeRefresher{results: []item{{"d1", "downloading"}}}

	_, err := Until(ctx, New(), storageSpec, item{"d1", "new"}, "ready", DefaultTimeout, f.refresh)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.calls)
}
