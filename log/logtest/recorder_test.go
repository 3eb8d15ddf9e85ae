/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log"
)

func TestRecorder(t *testing.T) {
	recorder := NewRecorder()
	logger := recorder.With(log.String("component", "cache"))

	logger.Info("entry stored", log.String("key", "predict_BBCA"))
	logger.WithLevel(log.LevelWarn).Info("dropped")
	logger.Errorf("cannot encode %s", "result")

	entries := recorder.Entries()
	require.Len(t, entries, 2)

	entry, found := recorder.FindEntry("entry stored")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	keyField, found := entry.FindField("key")
	require.True(t, found)
	require.Equal(t, "predict_BBCA", string(keyField.Bytes))
	_, found = entry.FindField("component")
	require.True(t, found)

	entry, found = recorder.FindEntry("cannot encode result")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)

	recorder.Reset()
	require.Empty(t, recorder.Entries())
}
