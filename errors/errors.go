// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors provides a standard error definition for use in
// plumb. Each error is assigned a class of error (kind), an operation
// with optional arguments, and the source span of the program text
// that produced it. Errors may be chained, and thus can be used to
// annotate upstream errors.
//
// Errors may be serialized to- and deserialized from JSON, and thus
// shipped across the host boundary.
//
// Package errors provides functions Errorf and New as convenience
// constructors, so that users need import only one error package.
//
// The API was inspired by package upspin.io/errors.
package errors

import (
	"bytes"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"runtime"
)

// Separator is inserted between chained errors while rendering.
// The default value (":\n\t") is intended for interactive tools. A
// host can set this to a different value to be more log friendly.
var Separator = ":\n\t"

// A Span locates a range of bytes in a program's source text.
// The zero Span means the error has no source location.
type Span struct {
	Start, End int
}

// NewSpan returns the span covering bytes [start, end).
func NewSpan(start, end int) Span {
	return Span{Start: start, End: end}
}

// IsZero tells whether the span carries no location.
func (s Span) IsZero() bool {
	return s.Start == 0 && s.End == 0
}

// String renders the span as "start..end".
func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Kind denotes the type of the error. The error's kind is used to
// render the error message and also for interpretation.
type Kind int

const (
	// Other denotes an unknown error.
	Other Kind = iota
	// LexError denotes a tokenization error.
	LexError
	// ParseError denotes a syntax error.
	ParseError
	// NameNotFound denotes a reference to an unbound identifier.
	NameNotFound
	// TypeMismatch denotes a value of the wrong runtime tag.
	TypeMismatch
	// MissingFixture denotes a reference to a fixture the host did not supply.
	MissingFixture
	// MissingArgument denotes a stage call lacking a required argument.
	MissingArgument
	// BadArgument denotes a stage call argument with an invalid value.
	BadArgument
	// DivideByZero denotes integer division by zero.
	DivideByZero
	// Overflow denotes 64-bit integer overflow.
	Overflow
	// NotReversible denotes forced inversion of a stage with no inverse.
	NotReversible
	// StoreNotFound denotes a lookup against a KV store that was never loaded.
	StoreNotFound
	// MalformedStoreInput denotes a kv.load input that is not a keyed record.
	MalformedStoreInput
	// DecodeError denotes a failed UTF-8, base64, or JSON decode.
	DecodeError

	maxKind
)

// String renders a human-readable description of kind k.
func (k Kind) String() string {
	switch k {
	default:
		return "unknown error"
	case LexError:
		return "lex error"
	case ParseError:
		return "parse error"
	case NameNotFound:
		return "name not found"
	case TypeMismatch:
		return "type mismatch"
	case MissingFixture:
		return "missing fixture"
	case MissingArgument:
		return "missing argument"
	case BadArgument:
		return "bad argument"
	case DivideByZero:
		return "division by zero"
	case Overflow:
		return "integer overflow"
	case NotReversible:
		return "stage is not reversible"
	case StoreNotFound:
		return "store not found"
	case MalformedStoreInput:
		return "malformed store input"
	case DecodeError:
		return "decode error"
	}
}

var kind2string = [maxKind]string{
	Other:               "Other",
	LexError:            "LexError",
	ParseError:          "ParseError",
	NameNotFound:        "NameNotFound",
	TypeMismatch:        "TypeMismatch",
	MissingFixture:      "MissingFixture",
	MissingArgument:     "MissingArgument",
	BadArgument:         "BadArgument",
	DivideByZero:        "DivideByZero",
	Overflow:            "Overflow",
	NotReversible:       "NotReversible",
	StoreNotFound:       "StoreNotFound",
	MalformedStoreInput: "MalformedStoreInput",
	DecodeError:         "DecodeError",
}

var string2kind = map[string]Kind{
	"Other":               Other,
	"LexError":            LexError,
	"ParseError":          ParseError,
	"NameNotFound":        NameNotFound,
	"TypeMismatch":        TypeMismatch,
	"MissingFixture":      MissingFixture,
	"MissingArgument":     MissingArgument,
	"BadArgument":         BadArgument,
	"DivideByZero":        DivideByZero,
	"Overflow":            Overflow,
	"NotReversible":       NotReversible,
	"StoreNotFound":       StoreNotFound,
	"MalformedStoreInput": MalformedStoreInput,
	"DecodeError":         DecodeError,
}

// Error defines a plumb error. It is used to indicate an error
// associated with an operation (and arguments), and may wrap another
// error.
//
// Errors should be constructed by errors.E.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Op is a one-word description of the operation that errored.
	Op string
	// Arg is an (optional) list of arguments to the operation.
	Arg []string
	// Span is the source span of the program text that errored.
	Span Span
	// Err is this error's underlying error: this error is caused
	// by Err.
	Err error
}

// E is used to construct errors. E constructs errors from a set of
// arguments; each of which must be one of the following types:
//
//	string
//		The first string argument is taken as the error's Op; subsequent
//		arguments are taken as the error's Arg.
//	Kind
//		Taken as the error's Kind.
//	Span
//		Taken as the error's source span.
//	error
//		Taken as the error's underlying error.
//
// If no Kind is provided and the underlying error is another *Error,
// the Kind (and Span, if unset) is inherited from it.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args")
	}
	e := new(Error)
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if e.Op == "" {
				e.Op = arg
			} else {
				e.Arg = append(e.Arg, arg)
			}
		case Kind:
			e.Kind = arg
		case Span:
			e.Span = arg
		case *Error:
			copy := *arg
			e.Err = &copy
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			return Errorf("unknown type %T, value %v in error call from %s:%d", arg, arg, file, line)
		}
	}
	if e.Err == nil {
		return e
	}
	if prev, ok := e.Err.(*Error); ok {
		if e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
		if e.Span.IsZero() {
			e.Span = prev.Span
		}
		if prev.Op == "" && prev.Kind == Other {
			e.Err = prev.Err
		}
	}
	return e
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

// Error renders this error and its chain of underlying errors,
// separated by Separator.
func (e *Error) Error() string {
	return e.ErrorSeparator(Separator)
}

// ErrorSeparator renders this error and its chain of underlying
// errors, separated by sep.
func (e *Error) ErrorSeparator(sep string) string {
	if e == nil {
		return "<nil>"
	}
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
		for i := range e.Arg {
			b.WriteString(" " + e.Arg[i])
		}
	}
	if !e.Span.IsZero() {
		pad(b, " ")
		b.WriteString("@" + e.Span.String())
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if err, ok := e.Err.(*Error); ok {
			pad(b, sep)
			b.WriteString(err.ErrorSeparator(sep))
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	return b.String()
}

// Errorf is an alternate spelling of fmt.Errorf.
var Errorf = fmt.Errorf

// New is an alternate spelling of errors.New.
var New = goerrors.New

// Recover recovers any error into an *Error. If the passed-in error
// is already an *Error, it is simply returned; otherwise it is wrapped.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if err, ok := err.(*Error); ok {
		return err
	}
	return E(err).(*Error)
}

// Copy creates a shallow copy of Error e.
func (e *Error) Copy() *Error {
	f := new(Error)
	*f = *e
	return f
}

type jsonError struct {
	Op    string
	Arg   []string
	Kind  string
	Start int
	End   int
	Cause *jsonError `json:",omitempty"`
	Error string
}

func (j *jsonError) toError() error {
	if j == nil {
		return nil
	}
	if j.Error != "" {
		return New(j.Error)
	}
	var args []interface{}
	args = append(args, j.Op)
	for _, arg := range j.Arg {
		args = append(args, arg)
	}
	args = append(args, string2kind[j.Kind])
	args = append(args, Span{Start: j.Start, End: j.End})
	if j.Cause != nil {
		args = append(args, j.Cause.toError())
	}
	return E(args...)
}

func toJSON(err error) *jsonError {
	switch e := err.(type) {
	case *Error:
		j := &jsonError{
			Op:    e.Op,
			Arg:   e.Arg,
			Kind:  kind2string[e.Kind],
			Start: e.Span.Start,
			End:   e.Span.End,
		}
		if e.Err != nil {
			j.Cause = toJSON(e.Err)
		}
		return j
	default:
		return &jsonError{Error: err.Error()}
	}
}

// MarshalJSON implements JSON marshalling for Error.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(e))
}

// UnmarshalJSON implements JSON unmarshalling for Error.
func (e *Error) UnmarshalJSON(b []byte) error {
	var ej jsonError
	if err := json.Unmarshal(b, &ej); err != nil {
		return err
	}
	e2, ok := ej.toError().(*Error)
	if !ok {
		return Errorf("expected *Error, got %T", e2)
	}
	*e = *e2
	return nil
}

// Match compares err1 with err2. If err1 has type Kind, Match
// reports whether err2's Kind is the same, otherwise, Match checks
// that every nonempty field in err1 has the same value in err2. If
// err1 is an *Error with a non-nil Err field, Match recurs to check
// that the two errors' chains of underlying errors also match.
func Match(err1 interface{}, err2 error) bool {
	e2 := Recover(err2)
	switch e1 := err1.(type) {
	default:
		return false
	case Kind:
		return e1 == e2.Kind
	case *Error:
		if e1.Op != "" && e2.Op != e1.Op {
			return false
		}
		if len(e1.Arg) != len(e2.Arg) {
			return false
		}
		for i := range e1.Arg {
			if e1.Arg[i] != e2.Arg[i] {
				return false
			}
		}
		if e1.Kind != Other && e2.Kind != e1.Kind {
			return false
		}
		if !e1.Span.IsZero() && e2.Span != e1.Span {
			return false
		}
		if e1.Err != nil {
			if _, ok := e1.Err.(*Error); ok {
				return Match(e1.Err, e2.Err)
			}
			if e2.Err == nil || e2.Err.Error() != e1.Err.Error() {
				return false
			}
		}
		return true
	}
}

// Is tells whether err's kind is k.
func Is(k Kind, err error) bool {
	return err != nil && Recover(err).Kind == k
}
