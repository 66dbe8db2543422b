// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package values defines the data structures representing runtime
// values in plumb. A value is a closed sum over a fixed set of
// kinds; the kind tag drives direction inference for reversible
// stages, so values are represented by an explicit discriminant
// rather than by reflection over Go types.
package values

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of T. The set is closed: every
// value that flows through a pipeline has exactly one of these tags.
type Kind int

const (
	// NullKind is the null value.
	NullKind Kind = iota
	// BoolKind is a boolean.
	BoolKind
	// IntKind is a 64-bit signed integer.
	IntKind
	// StrKind is a UTF-8 string.
	StrKind
	// BytesKind is an arbitrary byte sequence.
	BytesKind
	// ArrayKind is an ordered sequence of values.
	ArrayKind
	// RecordKind is an ordered mapping from field name to value.
	RecordKind
	// UnitKind is the sink acknowledgement value; it is never
	// surfaced to user code.
	UnitKind
	// StageKind is a first-class stage value.
	StageKind
)

// String renders the kind as the runtime tag name used in
// diagnostics.
func (k Kind) String() string {
	switch k {
	case NullKind:
		return "Null"
	case BoolKind:
		return "Bool"
	case IntKind:
		return "I64"
	case StrKind:
		return "Str"
	case BytesKind:
		return "Bytes"
	case ArrayKind:
		return "Array"
	case RecordKind:
		return "Record"
	case UnitKind:
		return "Unit"
	case StageKind:
		return "Stage"
	default:
		return "Invalid"
	}
}

// T is a single dynamic value. Only the field selected by Kind is
// meaningful. The zero T is null.
type T struct {
	Kind Kind

	Bool  bool
	Int   int64
	Str   string
	Bytes []byte
	Array []T
	Rec   *Record
	Stage *Stage
}

// Null is the null value.
var Null = T{Kind: NullKind}

// Unit is the unit value.
var Unit = T{Kind: UnitKind}

// NewBool returns a new boolean value.
func NewBool(b bool) T { return T{Kind: BoolKind, Bool: b} }

// NewInt returns a new integer value.
func NewInt(i int64) T { return T{Kind: IntKind, Int: i} }

// NewStr returns a new string value.
func NewStr(s string) T { return T{Kind: StrKind, Str: s} }

// NewBytes returns a new bytes value.
func NewBytes(p []byte) T { return T{Kind: BytesKind, Bytes: p} }

// NewArray returns a new array value.
func NewArray(xs []T) T { return T{Kind: ArrayKind, Array: xs} }

// NewRecord returns a new record value.
func NewRecord(r *Record) T { return T{Kind: RecordKind, Rec: r} }

// NewStage returns a new stage value.
func NewStage(s *Stage) T { return T{Kind: StageKind, Stage: s} }

// Field is a single record field.
type Field struct {
	Name  string
	Value T
}

// Record is an ordered mapping from field name to value. Field names
// are unique; insertion order is preserved so that serialized output
// is deterministic.
type Record struct {
	fields []Field
}

// NewRec returns an empty record.
func NewRec() *Record {
	return new(Record)
}

// Len returns the number of fields in the record.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Set sets field name to value v, overwriting any previous value
// while keeping the field's original position. New fields append.
func (r *Record) Set(name string, v T) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Lookup returns the value of field name and whether it is present.
func (r *Record) Lookup(name string) (T, bool) {
	if r == nil {
		return Null, false
	}
	for i := range r.fields {
		if r.fields[i].Name == name {
			return r.fields[i].Value, true
		}
	}
	return Null, false
}

// Fields returns the record's fields in insertion order. The caller
// must not mutate the returned slice.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	return r.fields
}

// Equal tells whether values v and w are structurally equal. Records
// compare by field set, not field order.
func Equal(v, w T) bool {
	if v.Kind != w.Kind {
		return false
	}
	switch v.Kind {
	case NullKind, UnitKind:
		return true
	case BoolKind:
		return v.Bool == w.Bool
	case IntKind:
		return v.Int == w.Int
	case StrKind:
		return v.Str == w.Str
	case BytesKind:
		return bytes.Equal(v.Bytes, w.Bytes)
	case ArrayKind:
		if len(v.Array) != len(w.Array) {
			return false
		}
		for i := range v.Array {
			if !Equal(v.Array[i], w.Array[i]) {
				return false
			}
		}
		return true
	case RecordKind:
		if v.Rec.Len() != w.Rec.Len() {
			return false
		}
		for _, f := range v.Rec.Fields() {
			g, ok := w.Rec.Lookup(f.Name)
			if !ok || !Equal(f.Value, g) {
				return false
			}
		}
		return true
	case StageKind:
		return stageEqual(v.Stage, w.Stage)
	default:
		return false
	}
}

// Less tells whether value v is less than w. It is defined on
// matching integer, string, and boolean operands only; callers must
// check kinds first.
func Less(v, w T) bool {
	switch v.Kind {
	case IntKind:
		return v.Int < w.Int
	case StrKind:
		return v.Str < w.Str
	case BoolKind:
		return !v.Bool && w.Bool
	default:
		panic("attempted to compare incomparable values")
	}
}

// Sprint returns a debug rendering of value v.
func Sprint(v T) string {
	switch v.Kind {
	case NullKind:
		return "null"
	case BoolKind:
		if v.Bool {
			return "true"
		}
		return "false"
	case IntKind:
		return strconv.FormatInt(v.Int, 10)
	case StrKind:
		return fmt.Sprintf("%q", v.Str)
	case BytesKind:
		return "0x" + hex.EncodeToString(v.Bytes)
	case ArrayKind:
		elems := make([]string, len(v.Array))
		for i, e := range v.Array {
			elems[i] = Sprint(e)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case RecordKind:
		elems := make([]string, 0, v.Rec.Len())
		for _, f := range v.Rec.Fields() {
			elems = append(elems, fmt.Sprintf("%s: %s", f.Name, Sprint(f.Value)))
		}
		return "{" + strings.Join(elems, ", ") + "}"
	case UnitKind:
		return "()"
	case StageKind:
		return "stage(" + v.Stage.String() + ")"
	default:
		return "<invalid>"
	}
}
