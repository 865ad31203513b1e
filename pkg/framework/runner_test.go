package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerFirstStopCancelsOthers(t *testing.T) {
	failure := errors.New("link lost")
	r := NewRunner()
	r.Go(
		NamedRun("failing", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	err := r.Wait()
	require.Error(t, err)
	var agg *AggregatedError
	require.True(t, errors.As(err, &agg))
	require.Equal(t, []error{failure}, agg.Errors)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r.Stop()
	require.NoError(t, r.Wait())
}

type fakeCloser struct {
	closed  chan struct{}
	counter int
}

func (c *fakeCloser) Close() error {
	c.counter++
	if c.counter == 1 {
		close(c.closed)
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	closer := &fakeCloser{closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RunWithContextCloser(ctx, closer, func() error {
		<-closer.closed
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, closer.counter)

	closer = &fakeCloser{closed: make(chan struct{})}
	require.NoError(t, RunWithContextCloser(context.Background(), closer, func() error {
		return nil
	}))
	require.Equal(t, 1, closer.counter)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Aggregate().Error())
}
