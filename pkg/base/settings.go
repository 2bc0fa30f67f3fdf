// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// Package base holds the settings shared by the remote query driver. The
// settings can be loaded from a yaml file or constructed in code.
package base

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	yaml "gopkg.in/yaml.v2"
)

// Duration is a time.Duration that unmarshals from yaml strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// OverflowMode controls what happens when a limit is exceeded.
type OverflowMode string

const (
	// OverflowThrow fails the query when the limit is exceeded.
	OverflowThrow OverflowMode = "throw"
	// OverflowBreak stops producing data when the limit is exceeded, as if
	// the stream had ended.
	OverflowBreak OverflowMode = "break"
)

// Settings are the driver settings recognized by the remote query executor.
type Settings struct {
	// UseHedgedRequests selects hedged connections over multiplexed ones
	// when connecting through a pool.
	UseHedgedRequests bool `yaml:"use_hedged_requests"`
	// SkipUnavailableShards makes an empty connection set terminate the
	// query with an empty result instead of failing.
	SkipUnavailableShards bool `yaml:"skip_unavailable_shards"`
	// EnableScalarSubqueryOptimization gates sending scalar subquery
	// results to the remote servers.
	EnableScalarSubqueryOptimization bool `yaml:"enable_scalar_subquery_optimization"`

	// MaxExecutionTime bounds the production of external table data. Zero
	// means no limit.
	MaxExecutionTime Duration `yaml:"max_execution_time"`
	// TimeoutOverflowMode controls the reaction to MaxExecutionTime.
	TimeoutOverflowMode OverflowMode `yaml:"timeout_overflow_mode"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
	SendTimeout    Duration `yaml:"send_timeout"`
	ReceiveTimeout Duration `yaml:"receive_timeout"`

	// HedgedConnectionTimeout is how long a hedged connection set waits for
	// the first packet of a replica before opening a backup replica.
	HedgedConnectionTimeout Duration `yaml:"hedged_connection_timeout"`
}

// DefaultSettings returns the settings used when no configuration is given.
func DefaultSettings() Settings {
	return Settings{
		EnableScalarSubqueryOptimization: true,
		TimeoutOverflowMode:              OverflowThrow,
		ConnectTimeout:                   Duration(10 * time.Second),
		SendTimeout:                      Duration(5 * time.Minute),
		ReceiveTimeout:                   Duration(5 * time.Minute),
		HedgedConnectionTimeout:          Duration(100 * time.Millisecond),
	}
}

// LoadSettings reads settings from a yaml file, filling unset fields with
// defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "reading settings from %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return Settings{}, errors.Wrapf(err, "parsing settings from %s", path)
	}
	return s, nil
}

// ConnectionTimeouts are the TCP timeouts applied at connect and send time.
type ConnectionTimeouts struct {
	Connect time.Duration
	Send    time.Duration
	Receive time.Duration
}

// Timeouts derives the connection timeouts from the settings.
func (s *Settings) Timeouts() ConnectionTimeouts {
	return ConnectionTimeouts{
		Connect: s.ConnectTimeout.Duration(),
		Send:    s.SendTimeout.Duration(),
		Receive: s.ReceiveTimeout.Duration(),
	}
}
