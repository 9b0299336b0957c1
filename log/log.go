// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log provides a minimal structured logger used across the library.
// Output is emitted as key/value pairs behind a pluggable Logger interface so
// that consumers can route parser diagnostics into their own logging stack.
package log

import (
	"fmt"
	"os"
)

// Logger is the logging abstraction accepted by the parser.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// DefaultMessageKey is the key under which formatted messages are logged.
var DefaultMessageKey = "msg"

// DefaultLogger writes to standard error.
var DefaultLogger Logger = NewStdLogger(os.Stderr)

type logger struct {
	logger Logger
	prefix []interface{}
}

func (c *logger) Log(level Level, keyvals ...interface{}) error {
	kvs := make([]interface{}, 0, len(c.prefix)+len(keyvals))
	kvs = append(kvs, c.prefix...)
	kvs = append(kvs, keyvals...)
	return c.logger.Log(level, kvs...)
}

// With returns a logger that prepends the given key/value pairs to every
// logged record.
func With(l Logger, kv ...interface{}) Logger {
	if c, ok := l.(*logger); ok {
		kvs := make([]interface{}, 0, len(c.prefix)+len(kv))
		kvs = append(kvs, c.prefix...)
		kvs = append(kvs, kv...)
		return &logger{logger: c.logger, prefix: kvs}
	}
	return &logger{logger: l, prefix: kv}
}

func sprint(a ...interface{}) string {
	return fmt.Sprint(a...)
}

func sprintf(format string, a ...interface{}) string {
	return fmt.Sprintf(format, a...)
}
