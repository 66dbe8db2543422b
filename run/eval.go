// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"math"

	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/syntax"
	"github.com/plumblang/plumb/values"
)

// evalValue evaluates expr to a value. ph is the current placeholder
// ("_") binding, or nil when no placeholder is in scope. The
// placeholder is threaded explicitly: stage argument expressions
// rebind it per stream item, and the array.* helpers rebind it per
// element.
func (s *Session) evalValue(e *syntax.Expr, ph *values.T) (values.T, error) {
	switch e.Kind {
	case syntax.ExprNull:
		return values.Null, nil
	case syntax.ExprBool:
		return values.NewBool(e.Bool), nil
	case syntax.ExprInt:
		return values.NewInt(e.Int), nil
	case syntax.ExprStr:
		return values.NewStr(e.Str), nil
	case syntax.ExprArray:
		items := make([]values.T, 0, len(e.List))
		for _, item := range e.List {
			v, err := s.evalValue(item, ph)
			if err != nil {
				return values.Null, err
			}
			items = append(items, v)
		}
		return values.NewArray(items), nil
	case syntax.ExprRecord:
		rec := values.NewRec()
		for _, f := range e.Fields {
			v, err := s.evalValue(f.Value, ph)
			if err != nil {
				return values.Null, err
			}
			rec.Set(f.Name, v)
		}
		return values.NewRecord(rec), nil
	case syntax.ExprField:
		base, err := s.evalValue(e.Left, ph)
		if err != nil {
			return values.Null, err
		}
		if base.Kind != values.RecordKind {
			return values.Null, errors.E("field", e.Ident, errors.TypeMismatch, e.Span,
				errors.Errorf("field access requires Record, got %s", base.Kind))
		}
		v, _ := base.Rec.Lookup(e.Ident)
		return v, nil // absent fields yield null
	case syntax.ExprPlaceholder:
		if ph == nil {
			return values.Null, errors.E("placeholder", errors.NameNotFound, e.Span,
				errors.New("placeholder _ is not bound here"))
		}
		return *ph, nil
	case syntax.ExprIdent:
		if def, ok := catalog[e.Ident]; ok && def.bare {
			return values.NewStage(values.Atomic(def.name, nil, e.Span)), nil
		}
		r, ok := s.env[e.Ident]
		if !ok {
			return values.Null, errors.E("lookup", e.Ident, errors.NameNotFound, e.Span,
				errors.Errorf("name %s is not bound", e.Ident))
		}
		if r.isStream {
			return values.Null, errors.E("lookup", e.Ident, errors.TypeMismatch, e.Span,
				errors.Errorf("stream %s used in value position", e.Ident))
		}
		return r.val, nil
	case syntax.ExprCall:
		return s.evalCall(e, ph)
	case syntax.ExprBinop:
		return s.evalBinop(e, ph)
	case syntax.ExprUnary:
		operand, err := s.evalValue(e.Left, ph)
		if err != nil {
			return values.Null, err
		}
		if operand.Kind != values.IntKind {
			return values.Null, errors.E("neg", errors.TypeMismatch, e.Span,
				errors.Errorf("operator - requires I64, got %s", operand.Kind))
		}
		if operand.Int == math.MinInt64 {
			return values.Null, errors.E("neg", errors.Overflow, e.Span)
		}
		return values.NewInt(-operand.Int), nil
	case syntax.ExprCompose:
		l, err := s.evalStageValue(e.Left, ph)
		if err != nil {
			return values.Null, err
		}
		r, err := s.evalStageValue(e.Right, ph)
		if err != nil {
			return values.Null, err
		}
		return values.NewStage(values.Seq(l, r)), nil
	case syntax.ExprInvert:
		st, err := s.evalStageValue(e.Left, ph)
		if err != nil {
			return values.Null, err
		}
		return values.NewStage(values.Inv(st)), nil
	case syntax.ExprPipeline:
		return values.Null, errors.E("eval", errors.TypeMismatch, e.Span,
			errors.New("pipeline in expression position"))
	default:
		return values.Null, errors.E("eval", errors.TypeMismatch, e.Span,
			errors.Errorf("bad expression kind %d", e.Kind))
	}
}

// evalStageValue evaluates expr and requires a stage value.
func (s *Session) evalStageValue(e *syntax.Expr, ph *values.T) (*values.Stage, error) {
	v, err := s.evalValue(e, ph)
	if err != nil {
		return nil, err
	}
	if v.Kind != values.StageKind {
		return nil, errors.E("stage", errors.TypeMismatch, e.Span,
			errors.Errorf("expected Stage, got %s", v.Kind))
	}
	return v.Stage, nil
}

func (s *Session) evalCall(e *syntax.Expr, ph *values.T) (values.T, error) {
	name := e.Callee.CalleeName()
	if name != "" {
		if def, ok := catalog[name]; ok {
			st, err := s.constructStage(def, e, ph)
			if err != nil {
				return values.Null, err
			}
			return values.NewStage(st), nil
		}
		if fn, ok := helpers[name]; ok {
			return fn(s, e, ph)
		}
	}
	callee, err := s.evalValue(e.Callee, ph)
	if err != nil {
		return values.Null, err
	}
	return values.Null, errors.E("call", errors.TypeMismatch, e.Span,
		errors.Errorf("%s value is not callable", callee.Kind))
}

func (s *Session) evalBinop(e *syntax.Expr, ph *values.T) (values.T, error) {
	op := e.Ident
	// && and || short-circuit; other operators evaluate both sides.
	if op == "&&" || op == "||" {
		l, err := s.evalValue(e.Left, ph)
		if err != nil {
			return values.Null, err
		}
		if l.Kind != values.BoolKind {
			return values.Null, s.binopTypeErr(e, l.Kind)
		}
		if op == "&&" && !l.Bool {
			return values.NewBool(false), nil
		}
		if op == "||" && l.Bool {
			return values.NewBool(true), nil
		}
		r, err := s.evalValue(e.Right, ph)
		if err != nil {
			return values.Null, err
		}
		if r.Kind != values.BoolKind {
			return values.Null, s.binopTypeErr(e, r.Kind)
		}
		return values.NewBool(r.Bool), nil
	}

	l, err := s.evalValue(e.Left, ph)
	if err != nil {
		return values.Null, err
	}
	r, err := s.evalValue(e.Right, ph)
	if err != nil {
		return values.Null, err
	}

	switch op {
	case "==":
		return values.NewBool(values.Equal(l, r)), nil
	case "!=":
		return values.NewBool(!values.Equal(l, r)), nil
	case "+":
		switch {
		case l.Kind == values.IntKind && r.Kind == values.IntKind:
			sum := l.Int + r.Int
			if (l.Int > 0 && r.Int > 0 && sum < 0) || (l.Int < 0 && r.Int < 0 && sum >= 0) {
				return values.Null, errors.E("add", errors.Overflow, e.Span)
			}
			return values.NewInt(sum), nil
		case l.Kind == values.StrKind && r.Kind == values.StrKind:
			return values.NewStr(l.Str + r.Str), nil
		}
		return values.Null, s.binopTypeErr(e, l.Kind)
	case "-", "*", "/":
		if l.Kind != values.IntKind || r.Kind != values.IntKind {
			return values.Null, s.binopTypeErr(e, l.Kind)
		}
		return s.evalArith(op, l.Int, r.Int, e.Span)
	case "<", "<=", ">", ">=":
		if l.Kind != r.Kind || (l.Kind != values.IntKind && l.Kind != values.StrKind) {
			return values.Null, s.binopTypeErr(e, l.Kind)
		}
		lt := values.Less(l, r)
		gt := values.Less(r, l)
		switch op {
		case "<":
			return values.NewBool(lt), nil
		case "<=":
			return values.NewBool(!gt), nil
		case ">":
			return values.NewBool(gt), nil
		default:
			return values.NewBool(!lt), nil
		}
	}
	return values.Null, errors.E("binop", errors.TypeMismatch, e.Span, errors.Errorf("bad operator %q", op))
}

func (s *Session) evalArith(op string, a, b int64, span errors.Span) (values.T, error) {
	switch op {
	case "-":
		diff := a - b
		if (b < 0 && diff < a) || (b > 0 && diff > a) {
			return values.Null, errors.E("sub", errors.Overflow, span)
		}
		return values.NewInt(diff), nil
	case "*":
		if a == 0 || b == 0 {
			return values.NewInt(0), nil
		}
		if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return values.Null, errors.E("mul", errors.Overflow, span)
		}
		prod := a * b
		if prod/a != b {
			return values.Null, errors.E("mul", errors.Overflow, span)
		}
		return values.NewInt(prod), nil
	default: // "/"
		if b == 0 {
			return values.Null, errors.E("div", errors.DivideByZero, span)
		}
		if a == math.MinInt64 && b == -1 {
			return values.Null, errors.E("div", errors.Overflow, span)
		}
		return values.NewInt(a / b), nil
	}
}

func (s *Session) binopTypeErr(e *syntax.Expr, got values.Kind) error {
	return errors.E("binop", e.Ident, errors.TypeMismatch, e.Span,
		errors.Errorf("operator %s is not defined on %s operands", e.Ident, got))
}

// helpers are the expression-position functions. Unlike stages, they
// evaluate immediately.
var helpers map[string]func(*Session, *syntax.Expr, *values.T) (values.T, error)

func init() {
	helpers = map[string]func(*Session, *syntax.Expr, *values.T) (values.T, error){
		"default":        evalDefault,
		"array.map":      evalArrayMap,
		"array.filter":   evalArrayFilter,
		"array.flat_map": evalArrayFlatMap,
		"array.any":      evalArrayAny,
		"array.contains": evalArrayContains,
	}
}

// helperArgs checks a helper call's arity and rejects named
// arguments, returning the positional argument expressions.
func helperArgs(name string, e *syntax.Expr, n int) ([]*syntax.Expr, error) {
	if len(e.Args) < n {
		return nil, errors.E(name, errors.MissingArgument, e.Span,
			errors.Errorf("%s requires %d arguments, got %d", name, n, len(e.Args)))
	}
	if len(e.Args) > n {
		return nil, errors.E(name, errors.BadArgument, e.Span,
			errors.Errorf("%s requires %d arguments, got %d", name, n, len(e.Args)))
	}
	exprs := make([]*syntax.Expr, n)
	for i, arg := range e.Args {
		if arg.Name != "" {
			return nil, errors.E(name, errors.BadArgument, arg.Span,
				errors.Errorf("%s does not accept named arguments", name))
		}
		exprs[i] = arg.Value
	}
	return exprs, nil
}

func evalDefault(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("default", e, 2)
	if err != nil {
		return values.Null, err
	}
	v, err := s.evalValue(args[0], ph)
	if err != nil {
		return values.Null, err
	}
	if v.Kind != values.NullKind {
		return v, nil
	}
	return s.evalValue(args[1], ph)
}

// helperArray evaluates a helper's first argument and requires an
// array.
func helperArray(s *Session, name string, arg *syntax.Expr, ph *values.T) ([]values.T, error) {
	v, err := s.evalValue(arg, ph)
	if err != nil {
		return nil, err
	}
	if v.Kind != values.ArrayKind {
		return nil, errors.E(name, errors.TypeMismatch, arg.Span,
			errors.Errorf("%s requires Array, got %s", name, v.Kind))
	}
	return v.Array, nil
}

func evalArrayMap(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("array.map", e, 2)
	if err != nil {
		return values.Null, err
	}
	arr, err := helperArray(s, "array.map", args[0], ph)
	if err != nil {
		return values.Null, err
	}
	out := make([]values.T, 0, len(arr))
	for _, elem := range arr {
		elem := elem
		v, err := s.evalValue(args[1], &elem)
		if err != nil {
			return values.Null, err
		}
		out = append(out, v)
	}
	return values.NewArray(out), nil
}

func evalArrayFilter(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("array.filter", e, 2)
	if err != nil {
		return values.Null, err
	}
	arr, err := helperArray(s, "array.filter", args[0], ph)
	if err != nil {
		return values.Null, err
	}
	var out []values.T
	for _, elem := range arr {
		elem := elem
		v, err := s.evalValue(args[1], &elem)
		if err != nil {
			return values.Null, err
		}
		if v.Kind != values.BoolKind {
			return values.Null, errors.E("array.filter", errors.TypeMismatch, args[1].Span,
				errors.Errorf("filter expression must yield Bool, got %s", v.Kind))
		}
		if v.Bool {
			out = append(out, elem)
		}
	}
	return values.NewArray(out), nil
}

func evalArrayFlatMap(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("array.flat_map", e, 2)
	if err != nil {
		return values.Null, err
	}
	arr, err := helperArray(s, "array.flat_map", args[0], ph)
	if err != nil {
		return values.Null, err
	}
	var out []values.T
	for _, elem := range arr {
		elem := elem
		v, err := s.evalValue(args[1], &elem)
		if err != nil {
			return values.Null, err
		}
		if v.Kind != values.ArrayKind {
			return values.Null, errors.E("array.flat_map", errors.TypeMismatch, args[1].Span,
				errors.Errorf("flat_map expression must yield Array, got %s", v.Kind))
		}
		out = append(out, v.Array...)
	}
	return values.NewArray(out), nil
}

func evalArrayAny(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("array.any", e, 2)
	if err != nil {
		return values.Null, err
	}
	arr, err := helperArray(s, "array.any", args[0], ph)
	if err != nil {
		return values.Null, err
	}
	for _, elem := range arr {
		elem := elem
		v, err := s.evalValue(args[1], &elem)
		if err != nil {
			return values.Null, err
		}
		if v.Kind != values.BoolKind {
			return values.Null, errors.E("array.any", errors.TypeMismatch, args[1].Span,
				errors.Errorf("any expression must yield Bool, got %s", v.Kind))
		}
		if v.Bool {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}

func evalArrayContains(s *Session, e *syntax.Expr, ph *values.T) (values.T, error) {
	args, err := helperArgs("array.contains", e, 2)
	if err != nil {
		return values.Null, err
	}
	arr, err := helperArray(s, "array.contains", args[0], ph)
	if err != nil {
		return values.Null, err
	}
	want, err := s.evalValue(args[1], ph)
	if err != nil {
		return values.Null, err
	}
	for _, elem := range arr {
		if values.Equal(elem, want) {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}
