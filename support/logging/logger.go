// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package logging defines the logger interface accepted throughout goflv.
package logging

// L accepts logging data.
//
// L is satisfied by zap's *zap.SugaredLogger, but is small enough that any
// leveled logger can be adapted to it.
type L interface {
	// Debugf emits a debug-level log.
	Debugf(fmt string, args ...interface{})
	// Infof emits an info-level log.
	Infof(fmt string, args ...interface{})
	// Warnf emits a warning-level log.
	Warnf(fmt string, args ...interface{})
	// Errorf emits an error-level log.
	Errorf(fmt string, args ...interface{})

	// Debugw emits a debug-level log with structured key/value pairs.
	Debugw(msg string, keysAndValues ...interface{})
	// Infow emits an info-level log with structured key/value pairs.
	Infow(msg string, keysAndValues ...interface{})
	// Warnw emits a warning-level log with structured key/value pairs.
	Warnw(msg string, keysAndValues ...interface{})
}

// Nop is a L instance that does nothing.
var Nop L = nopLogger{}

// Must ensures that a valid L is available. If l is not nil, it will be
// returned; otherwise, Must will return Nop.
func Must(l L) L {
	if l != nil {
		return l
	}
	return Nop
}

type nopLogger struct{}

func (nopLogger) Debugf(fmt string, args ...interface{}) {}
func (nopLogger) Infof(fmt string, args ...interface{})  {}
func (nopLogger) Warnf(fmt string, args ...interface{})  {}
func (nopLogger) Errorf(fmt string, args ...interface{}) {}

func (nopLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Warnw(msg string, keysAndValues ...interface{})  {}
