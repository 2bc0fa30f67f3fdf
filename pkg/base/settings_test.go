// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package base

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.False(t, s.UseHedgedRequests)
	require.False(t, s.SkipUnavailableShards)
	require.True(t, s.EnableScalarSubqueryOptimization)
	require.Equal(t, OverflowThrow, s.TimeoutOverflowMode)

	timeouts := s.Timeouts()
	require.Equal(t, s.ConnectTimeout.Duration(), timeouts.Connect)
	require.Equal(t, s.SendTimeout.Duration(), timeouts.Send)
	require.Equal(t, s.ReceiveTimeout.Duration(), timeouts.Receive)
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
use_hedged_requests: true
skip_unavailable_shards: true
max_execution_time: 30s
timeout_overflow_mode: break
connect_timeout: 2s
`), 0644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	require.True(t, s.UseHedgedRequests)
	require.True(t, s.SkipUnavailableShards)
	require.Equal(t, 30*time.Second, s.MaxExecutionTime.Duration())
	require.Equal(t, OverflowBreak, s.TimeoutOverflowMode)
	require.Equal(t, 2*time.Second, s.ConnectTimeout.Duration())
	// Unset fields keep their defaults.
	require.True(t, s.EnableScalarSubqueryOptimization)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_setting: 1\n"), 0644))
	_, err = LoadSettings(path)
	require.Error(t, err)
}
