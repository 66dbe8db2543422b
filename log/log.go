// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package log implements the leveled logging used by plumb's
// interpreter and tools on top of Go's standard log package. The
// pipeline driver traces stage application at DebugLevel through a
// session's logger, and run manifests name their level with
// ParseLevel. Interpreter outputs (tables, logs, explain) never
// pass through this package, so logging cannot perturb
// deterministic results.
package log

import (
	"fmt"
	"log"
	"os"
)

// Level defines the level of logging. Higher levels are more
// verbose.
type Level int

const (
	// OffLevel turns logging off.
	OffLevel Level = iota
	// ErrorLevel outputs only error messages.
	ErrorLevel
	// InfoLevel is the standard error level.
	InfoLevel
	// DebugLevel outputs detailed traces of evaluation, including
	// one line per stage application.
	DebugLevel
)

// String renders the level as the name accepted by ParseLevel.
func (l Level) String() string {
	switch l {
	case OffLevel:
		return "off"
	case ErrorLevel:
		return "error"
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	default:
		return "invalid"
	}
}

// ParseLevel parses a level name as written in run manifests and
// flags. The empty string means ErrorLevel, the quiet default for
// batch runs.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "off":
		return OffLevel, nil
	case "", "error":
		return ErrorLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}
	return OffLevel, fmt.Errorf("bad log level %q", s)
}

// An Outputter receives published log messages. Go's
// *log.Logger implements Outputter.
type Outputter interface {
	Output(calldepth int, s string) error
}

// A Logger publishes messages at or below its level to its
// outputter. Nil Loggers ignore all log messages, so a session
// whose host supplied no logger costs nothing to trace into.
type Logger struct {
	// Outputter receives all log messages at or below the Logger's
	// current level.
	Outputter
	// Level defines the publishing level of this Logger.
	Level Level
}

// New creates a new Logger that publishes messages at or below the
// provided level to the provided outputter.
func New(out Outputter, level Level) *Logger {
	if level == OffLevel {
		return nil
	}
	return &Logger{
		Outputter: out,
		Level:     level,
	}
}

// At tells whether the logger is at or below the provided level.
func (l *Logger) At(level Level) bool {
	return l != nil && level <= l.Level
}

func (l *Logger) emit(level Level, s string) {
	if !l.At(level) || l.Outputter == nil {
		return
	}
	// Three frames: emit, the leveled wrapper, the caller.
	l.Output(3, s)
}

// Print formats a message in the manner of fmt.Print and publishes
// it at InfoLevel.
func (l *Logger) Print(v ...interface{}) {
	l.emit(InfoLevel, fmt.Sprint(v...))
}

// Printf formats a message in the manner of fmt.Printf and
// publishes it at InfoLevel.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.emit(InfoLevel, fmt.Sprintf(format, args...))
}

// Error formats a message in the manner of fmt.Print and publishes
// it at ErrorLevel.
func (l *Logger) Error(v ...interface{}) {
	l.emit(ErrorLevel, fmt.Sprint(v...))
}

// Errorf formats a message in the manner of fmt.Printf and
// publishes it at ErrorLevel.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(ErrorLevel, fmt.Sprintf(format, args...))
}

// Debug formats a message in the manner of fmt.Print and publishes
// it at DebugLevel.
func (l *Logger) Debug(v ...interface{}) {
	l.emit(DebugLevel, fmt.Sprint(v...))
}

// Debugf formats a message in the manner of fmt.Printf and
// publishes it at DebugLevel.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(DebugLevel, fmt.Sprintf(format, args...))
}

// Apply traces one stage application at DebugLevel, in the same
// "[tag] name" shape the plan printer uses, so a debug log reads
// against the plan line for line.
func (l *Logger) Apply(tag, name string) {
	if !l.At(DebugLevel) {
		return
	}
	l.emit(DebugLevel, "apply ["+tag+"] "+name)
}

// Std is the standard logger.
var Std = New(log.New(os.Stderr, "", log.LstdFlags), InfoLevel)

// The following are convenience functions to call
// common methods on the Std logger.
var (
	Print  = Std.Print
	Printf = Std.Printf
	Error  = Std.Error
	Errorf = Std.Errorf
	Debug  = Std.Debug
	Debugf = Std.Debugf
	At     = Std.At
)

// Fatal formats a message in the manner of fmt.Print, outputs it to
// the standard outputter (always), and then calls os.Exit(1).
func Fatal(v ...interface{}) {
	Std.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf formats a message in the manner of fmt.Printf, outputs it to
// the standard outputter (always), and then calls os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	Std.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
