// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package syntax implements the lexer, parser, and abstract syntax
// tree for the plumb pipeline language. Every node carries the byte
// span of the source text it was parsed from; spans flow into the
// diagnostics produced by evaluation.
package syntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plumblang/plumb/errors"
)

// StmtKind classifies a statement.
type StmtKind int

const (
	// StmtBind is a binding statement: ident ":=" expr ";".
	StmtBind StmtKind = iota
	// StmtExpr is a pipeline (or bare expression) statement.
	StmtExpr
)

// A Stmt is a single program statement.
type Stmt struct {
	Kind StmtKind
	// Name is the bound identifier (StmtBind).
	Name string
	// Expr is the statement's expression. For StmtBind it is the
	// right-hand side; for StmtExpr it is the whole statement.
	Expr *Expr
	Span errors.Span
}

// ExprKind classifies an expression node.
type ExprKind int

const (
	// ExprNull is the literal null.
	ExprNull ExprKind = iota
	// ExprBool is a boolean literal.
	ExprBool
	// ExprInt is an integer literal.
	ExprInt
	// ExprStr is a string literal.
	ExprStr
	// ExprArray is an array constructor.
	ExprArray
	// ExprRecord is a record constructor.
	ExprRecord
	// ExprField is field access: Left "." Ident.
	ExprField
	// ExprPlaceholder is the bare "_".
	ExprPlaceholder
	// ExprIdent is an identifier reference.
	ExprIdent
	// ExprCall is a call: Callee "(" Args ")".
	ExprCall
	// ExprBinop is a binary operation; Ident holds the operator.
	ExprBinop
	// ExprUnary is a unary operation; Ident holds the operator.
	ExprUnary
	// ExprCompose is stage composition: Left ">>" Right.
	ExprCompose
	// ExprInvert is forced stage inversion: "~" Left.
	ExprInvert
	// ExprPipeline threads Left through the stage expressions in
	// List.
	ExprPipeline
)

// An Expr is a single expression node. Exprs use a single struct
// with a Kind discriminant; only the fields relevant to the kind are
// set.
type Expr struct {
	Kind ExprKind
	Span errors.Span

	// Bool, Int, and Str hold literal values.
	Bool bool
	Int  int64
	Str  string

	// Ident holds an identifier name (ExprIdent), a field name
	// (ExprField), or an operator (ExprBinop, ExprUnary).
	Ident string

	// Left and Right are the node's subexpressions.
	Left, Right *Expr

	// List holds array elements (ExprArray) or pipeline stage
	// expressions (ExprPipeline).
	List []*Expr

	// Fields holds record constructor fields in source order.
	Fields []FieldInit

	// Callee and Args describe a call.
	Callee *Expr
	Args   []Arg
}

// FieldInit is a single field of a record constructor.
type FieldInit struct {
	Name  string
	Value *Expr
	Span  errors.Span
}

// Arg is a call argument. Positional arguments have an empty Name.
type Arg struct {
	Name  string
	Value *Expr
	Span  errors.Span
}

// CalleeName flattens a callee expression into a dotted name:
// Ident yields its name; Field over a flattenable expression yields
// "base.field". Other callees yield "".
func (e *Expr) CalleeName() string {
	switch e.Kind {
	case ExprIdent:
		return e.Ident
	case ExprField:
		base := e.Left.CalleeName()
		if base == "" {
			return ""
		}
		return base + "." + e.Ident
	default:
		return ""
	}
}

// String renders the expression as surface syntax. It is used to
// summarize stage arguments in plans and diagnostics; the rendering
// is deterministic but does not preserve the original spacing, and
// grouping parentheses are not written back: "(1 + 2) * 3" renders
// as "1 + 2 * 3".
func (e *Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Expr) write(b *strings.Builder) {
	switch e.Kind {
	case ExprNull:
		b.WriteString("null")
	case ExprBool:
		if e.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case ExprInt:
		b.WriteString(strconv.FormatInt(e.Int, 10))
	case ExprStr:
		b.WriteString(strconv.Quote(e.Str))
	case ExprArray:
		b.WriteString("[")
		for i, item := range e.List {
			if i > 0 {
				b.WriteString(", ")
			}
			item.write(b)
		}
		b.WriteString("]")
	case ExprRecord:
		b.WriteString("{")
		for i, f := range e.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			f.Value.write(b)
		}
		b.WriteString("}")
	case ExprField:
		e.Left.write(b)
		b.WriteString(".")
		b.WriteString(e.Ident)
	case ExprPlaceholder:
		b.WriteString("_")
	case ExprIdent:
		b.WriteString(e.Ident)
	case ExprCall:
		e.Callee.write(b)
		b.WriteString("(")
		for i, arg := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if arg.Name != "" {
				b.WriteString(arg.Name)
				b.WriteString("=")
			}
			arg.Value.write(b)
		}
		b.WriteString(")")
	case ExprBinop:
		e.Left.write(b)
		b.WriteString(" ")
		b.WriteString(e.Ident)
		b.WriteString(" ")
		e.Right.write(b)
	case ExprUnary:
		b.WriteString(e.Ident)
		e.Left.write(b)
	case ExprCompose:
		e.Left.write(b)
		b.WriteString(" >> ")
		e.Right.write(b)
	case ExprInvert:
		b.WriteString("~")
		e.Left.write(b)
	case ExprPipeline:
		e.Left.write(b)
		for _, stage := range e.List {
			b.WriteString(" |> ")
			stage.write(b)
		}
	default:
		fmt.Fprintf(b, "<bad expr %d>", e.Kind)
	}
}
