// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

// Package log provides a thin leveled logging facility. Messages carry the
// tags attached to the context via logtags, and arguments are formatted
// through redact so that unsafe values can be scrubbed from shared logs.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

// Severity of a log event.
type Severity int

const (
	// SeverityInfo is used for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is used for situations which may require special handling.
	SeverityWarning
	// SeverityError is used for errors.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "I"
	case SeverityWarning:
		return "W"
	case SeverityError:
		return "E"
	}
	return "?"
}

var verbosity int32

// SetVModule sets the verbosity level for VEventf. Events logged with a level
// at or below this value are emitted.
func SetVModule(level int) {
	atomic.StoreInt32(&verbosity, int32(level))
}

// V returns whether the given verbosity level is enabled.
func V(level int32) bool {
	return atomic.LoadInt32(&verbosity) >= level
}

var output io.Writer = os.Stderr

// SetOutput redirects log output. Intended for tests.
func SetOutput(w io.Writer) {
	output = w
}

func logfDepth(ctx context.Context, sev Severity, format string, args ...interface{}) {
	var tags string
	if b := logtags.FromContext(ctx); b != nil {
		tags = " [" + b.String() + "]"
	}
	msg := redact.Sprintf(format, args...)
	fmt.Fprintf(output, "%s%s%s %s\n",
		sev, time.Now().UTC().Format("060102 15:04:05.000000"), tags, msg.StripMarkers())
}

// Infof logs to the INFO level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, SeverityInfo, format, args...)
}

// Warningf logs to the WARNING level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, SeverityWarning, format, args...)
}

// Errorf logs to the ERROR level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, SeverityError, format, args...)
}

// VEventf logs to the INFO level when the given verbosity is enabled.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if !V(level) {
		return
	}
	logfDepth(ctx, SeverityInfo, format, args...)
}
