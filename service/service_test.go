/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
)

type registeringUnit struct {
	*mockUnit
	countingMetricsRegisterer
}

func TestService_StartContext(t *testing.T) {
	t.Run("context cancellation stops unit gracefully", func(t *testing.T) {
		unit := &registeringUnit{mockUnit: newMockUnit()}
		logRecorder := logtest.NewRecorder()
		svc := NewWithOpts(logRecorder, unit, Opts{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, svc.StartContext(ctx))
		require.True(t, unit.graceful.Load())
		require.Equal(t, 1, unit.registrations)
		require.Equal(t, 0, unit.registered)
		_, found := logRecorder.FindEntry("context is canceled, service will be stopped")
		require.True(t, found)
	})

	t.Run("signal stops unit", func(t *testing.T) {
		unit := newMockUnit()
		svc := New(logtest.NewRecorder(), unit)
		svc.Signals <- syscall.SIGTERM
		require.NoError(t, svc.Start())
		require.Equal(t, int32(1), unit.stopped.Load())
	})

	t.Run("fatal error", func(t *testing.T) {
		unit := newMockUnit()
		unit.startErr = errors.New("bind: address already in use")
		svc := NewWithOpts(logtest.NewRecorder(), unit, Opts{})
		err := svc.Start()
		require.ErrorIs(t, err, unit.startErr)
		require.Zero(t, unit.stopped.Load())
	})
}
