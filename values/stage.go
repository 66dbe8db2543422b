// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package values

import (
	"strings"

	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/syntax"
)

// StageOp discriminates the structure of a stage value.
type StageOp int

const (
	// StageAtomic is a named built-in stage with bound arguments.
	StageAtomic StageOp = iota
	// StageSeq is the composition of two stages (">>").
	StageSeq
	// StageInv is a stage forced into its inverse direction ("~").
	StageInv
)

// A Stage is a first-class stage value: atomic, composed, or
// inverted. Stages are data only; the behavior behind an atomic's
// name lives in the interpreter's dispatch table, so stages can be
// inspected (by the plan printer, among others) without evaluation.
type Stage struct {
	Op StageOp

	// Name and Args describe an atomic stage.
	Name string
	Args []StageArg

	// Left and Right are the halves of a composition.
	Left, Right *Stage

	// Inner is the inverted stage.
	Inner *Stage

	// Span is the source span of the expression the stage was
	// constructed from.
	Span errors.Span
}

// A StageArg is one argument bound into an atomic stage at
// construction time. Arguments evaluated at construction carry a
// Value; per-item expression arguments (map, filter, key selectors)
// carry the unevaluated Expr instead.
type StageArg struct {
	// Name is the argument's keyword; it is empty for positional
	// arguments.
	Name string

	Value T
	Expr  *syntax.Expr
}

// IsExpr tells whether the argument is an unevaluated expression.
func (a StageArg) IsExpr() bool { return a.Expr != nil }

// Atomic returns a new atomic stage value.
func Atomic(name string, args []StageArg, span errors.Span) *Stage {
	return &Stage{Op: StageAtomic, Name: name, Args: args, Span: span}
}

// Seq returns the composition of stages a then b.
func Seq(a, b *Stage) *Stage {
	return &Stage{Op: StageSeq, Left: a, Right: b, Span: errors.NewSpan(a.Span.Start, b.Span.End)}
}

// Inv returns stage s forced into its inverse direction. The
// inversion is normalized structurally: Inv(Seq(a, b)) becomes
// Seq(Inv(b), Inv(a)) and Inv(Inv(x)) becomes x, so Inv only ever
// wraps atomics. Whether the atomic actually has an inverse is
// checked at apply time, not here.
func Inv(s *Stage) *Stage {
	switch s.Op {
	case StageSeq:
		return Seq(Inv(s.Right), Inv(s.Left))
	case StageInv:
		return s.Inner
	default:
		return &Stage{Op: StageInv, Inner: s, Span: s.Span}
	}
}

// String renders the stage as surface syntax.
func (s *Stage) String() string {
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *Stage) write(b *strings.Builder) {
	switch s.Op {
	case StageAtomic:
		b.WriteString(s.Name)
		if len(s.Args) > 0 {
			b.WriteString("(")
			for i, arg := range s.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				if arg.Name != "" {
					b.WriteString(arg.Name)
					b.WriteString("=")
				}
				if arg.IsExpr() {
					b.WriteString(arg.Expr.String())
				} else {
					b.WriteString(Sprint(arg.Value))
				}
			}
			b.WriteString(")")
		}
	case StageSeq:
		s.Left.write(b)
		b.WriteString(" >> ")
		s.Right.write(b)
	case StageInv:
		b.WriteString("~")
		s.Inner.write(b)
	}
}

func stageEqual(s, t *Stage) bool {
	if s == t {
		return true
	}
	if s == nil || t == nil || s.Op != t.Op {
		return false
	}
	switch s.Op {
	case StageAtomic:
		if s.Name != t.Name || len(s.Args) != len(t.Args) {
			return false
		}
		for i := range s.Args {
			a, b := s.Args[i], t.Args[i]
			if a.Name != b.Name || a.IsExpr() != b.IsExpr() {
				return false
			}
			if a.IsExpr() {
				if a.Expr != b.Expr {
					return false
				}
			} else if !Equal(a.Value, b.Value) {
				return false
			}
		}
		return true
	case StageSeq:
		return stageEqual(s.Left, t.Left) && stageEqual(s.Right, t.Right)
	case StageInv:
		return stageEqual(s.Inner, t.Inner)
	default:
		return false
	}
}
