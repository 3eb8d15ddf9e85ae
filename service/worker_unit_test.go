/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingMetricsRegisterer struct {
	registered    int
	registrations int
}

func (r *countingMetricsRegisterer) MustRegisterMetrics() {
	r.registered++
	r.registrations++
}

func (r *countingMetricsRegisterer) UnregisterMetrics() { r.registered-- }

func TestWorkerUnit(t *testing.T) {
	t.Run("graceful stop waits for worker", func(t *testing.T) {
		finished := make(chan struct{})
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(finished)
			return nil
		}))
		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)

		require.NoError(t, unit.Stop(true))
		select {
		case <-finished:
		default:
			t.Fatal("worker is not finished after graceful stop")
		}
		require.Empty(t, fatalErr)
	})

	t.Run("stop timeout exceeded", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: 10 * time.Millisecond})
		go unit.Start(make(chan error, 1))
		require.Eventually(t, unit.started.Load, time.Second, time.Millisecond)

		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			return errors.New("boom")
		}))
		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		require.EqualError(t, <-fatalErr, "boom")
	})

	t.Run("stop without start", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil }))
		require.NoError(t, unit.Stop(true))
	})

	t.Run("metrics registerer", func(t *testing.T) {
		mr := &countingMetricsRegisterer{}
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error { return nil }),
			WorkerUnitOpts{MetricsRegisterer: mr})
		unit.MustRegisterMetrics()
		require.Equal(t, 1, mr.registered)
		unit.UnregisterMetrics()
		require.Equal(t, 0, mr.registered)
	})
}
