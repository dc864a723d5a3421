// Copyright (C) 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the small context-aware, leveled logger used
// throughout this module in place of ad-hoc fmt.Printf calls.
package log

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Severity is the level a message is logged at.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "D"
	case Info:
		return "I"
	case Warning:
		return "W"
	case Error:
		return "E"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}

var (
	mu     sync.Mutex
	out    = stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds)
	fatalH = func(msg string) { panic(errors.New(msg)) }
)

// SetFatalHandler overrides what happens after a Fatal-severity message is
// logged. The default panics (so a precondition violation can be recovered
// from and asserted on in tests); a long-running host process should
// install a handler that terminates instead.
func SetFatalHandler(h func(msg string)) {
	mu.Lock()
	defer mu.Unlock()
	fatalH = h
}

// tagKey is the context key under which WithTag stores a short tag for
// correlating log lines across goroutines; write reads it back.
type tagKey struct{}

// WithTag attaches a short correlation tag (e.g. a device or queue name) to
// ctx; subsequent log calls using the returned context include it.
func WithTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tagKey{}, tag)
}

func write(ctx context.Context, sev Severity, format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	tag, _ := ctx.Value(tagKey{}).(string)

	mu.Lock()
	if tag != "" {
		out.Printf("%s [%s] %s", sev, tag, msg)
	} else {
		out.Printf("%s %s", sev, msg)
	}
	mu.Unlock()
	return msg
}

// D logs a debug-severity message.
func D(ctx context.Context, format string, args ...interface{}) {
	write(ctx, Debug, format, args...)
}

// I logs an info-severity message.
func I(ctx context.Context, format string, args ...interface{}) {
	write(ctx, Info, format, args...)
}

// W logs a warning-severity message.
func W(ctx context.Context, format string, args ...interface{}) {
	write(ctx, Warning, format, args...)
}

// E logs an error-severity message.
func E(ctx context.Context, format string, args ...interface{}) {
	write(ctx, Error, format, args...)
}

// F logs a fatal-severity message describing a precondition violation, then
// invokes the fatal handler (panic, unless overridden with SetFatalHandler).
// F never returns normally.
func F(ctx context.Context, format string, args ...interface{}) {
	msg := write(ctx, Fatal, format, args...)
	mu.Lock()
	h := fatalH
	mu.Unlock()
	h(msg)
	panic(msg) // unreachable unless a custom handler returns
}

// Err logs err (wrapped with the given message) at error severity and
// returns the wrapped error for the caller to propagate. If err is nil, a
// new error is created from the message alone.
func Err(ctx context.Context, err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if err != nil {
		wrapped = errors.Wrap(err, msg)
	} else {
		wrapped = errors.New(msg)
	}
	write(ctx, Error, "%v", wrapped)
	return wrapped
}
