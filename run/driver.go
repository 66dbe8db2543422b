// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/syntax"
	"github.com/plumblang/plumb/values"
)

// A result is the outcome of a statement-level expression: either a
// materialized stream or a single value (which includes stage
// values).
type result struct {
	isStream bool
	items    []values.T
	val      values.T
}

// Exec executes the parsed program against the session, in source
// order. The first failure aborts the run; sinks written before the
// failure are retained.
func (s *Session) Exec(stmts []*syntax.Stmt) error {
	for _, stmt := range stmts {
		if err := s.execStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) execStmt(stmt *syntax.Stmt) error {
	switch stmt.Kind {
	case syntax.StmtBind:
		if _, ok := s.env[stmt.Name]; ok {
			return errors.E("bind", stmt.Name, errors.BadArgument, stmt.Span,
				errors.Errorf("name %s is already bound", stmt.Name))
		}
		s.Log.Debugf("binding %s", stmt.Name)
		r, err := s.evalTop(stmt.Expr)
		if err != nil {
			return err
		}
		s.env[stmt.Name] = r
		return nil
	default:
		s.Log.Debug("pipeline")
		_, err := s.evalTop(stmt.Expr)
		return err
	}
}

// evalTop evaluates a statement-level expression. Pipelines (and
// identifiers bound to streams) are driven to exhaustion here:
// pulling the final stage cascades demand upward, so sinks fire as
// the statement executes, and bound streams are materialized in
// statement order.
func (s *Session) evalTop(e *syntax.Expr) (result, error) {
	if e.Kind == syntax.ExprPipeline {
		str, err := s.evalPipeline(e)
		if err != nil {
			return result{}, err
		}
		items, err := drain(str)
		if err != nil {
			return result{}, err
		}
		return result{isStream: true, items: items}, nil
	}
	if e.Kind == syntax.ExprIdent {
		if r, ok := s.env[e.Ident]; ok && r.isStream {
			return r, nil
		}
	}
	v, err := s.evalValue(e, nil)
	if err != nil {
		return result{}, err
	}
	return result{val: v}, nil
}

// evalPipeline builds the lazy stream for a pipeline expression:
// the source stream wrapped by each stage in order. Nothing is
// pulled here.
func (s *Session) evalPipeline(e *syntax.Expr) (stream, error) {
	src, err := s.evalSource(e.Left)
	if err != nil {
		return nil, err
	}
	for _, stageExpr := range e.List {
		st, err := s.evalStageValue(stageExpr, nil)
		if err != nil {
			return nil, err
		}
		src, err = s.applyStage(st, src)
		if err != nil {
			return nil, err
		}
	}
	return src, nil
}

// evalSource evaluates a pipeline's leading expression to a source
// stream. Identifiers bound to streams replay their items; a
// source-tagged stage applies against an empty upstream; any other
// stage value fails with TypeMismatch; any non-stage value is
// wrapped as a one-element stream.
func (s *Session) evalSource(e *syntax.Expr) (stream, error) {
	if e.Kind == syntax.ExprIdent {
		if r, ok := s.env[e.Ident]; ok && r.isStream {
			return sliceStream(r.items), nil
		}
	}
	v, err := s.evalValue(e, nil)
	if err != nil {
		return nil, err
	}
	if v.Kind == values.StageKind {
		st := v.Stage
		if st.Op == values.StageAtomic {
			if def, ok := catalog[st.Name]; ok && def.tag == TagSource {
				return s.applyStage(st, emptyStream)
			}
		}
		return nil, errors.E("pipeline", errors.TypeMismatch, e.Span,
			errors.Errorf("stage %s cannot source a pipeline", st))
	}
	return singleStream(v), nil
}

// applyStage wraps the upstream with the behavior of stage st.
// Composition applies each half in order; forced inversion applies
// the atomic's inverse, failing with NotReversible when it has
// none. Direction inference for reversible atomics happens per item
// in the returned stream.
func (s *Session) applyStage(st *values.Stage, in stream) (stream, error) {
	switch st.Op {
	case values.StageSeq:
		out, err := s.applyStage(st.Left, in)
		if err != nil {
			return nil, err
		}
		return s.applyStage(st.Right, out)
	case values.StageInv:
		atom := st.Inner
		if atom.Op != values.StageAtomic {
			return nil, errors.E("apply", errors.NotReversible, st.Span,
				errors.Errorf("cannot invert %s", atom))
		}
		def, ok := catalog[atom.Name]
		if !ok {
			return nil, errors.E("apply", atom.Name, errors.NameNotFound, st.Span)
		}
		if def.reversible == nil {
			return nil, errors.E(atom.Name, errors.NotReversible, st.Span,
				errors.Errorf("stage %s has no inverse", atom.Name))
		}
		s.Log.Apply("reversible", "~"+atom.Name)
		return s.reversibleStream(def, atom, in, true), nil
	default:
		def, ok := catalog[st.Name]
		if !ok {
			return nil, errors.E("apply", st.Name, errors.NameNotFound, st.Span)
		}
		s.Log.Apply(def.tag.String(), st.Name)
		if def.tag == TagReversible {
			return s.reversibleStream(def, st, in, false), nil
		}
		return def.apply(s, st, in)
	}
}

// reversibleStream applies a reversible atomic per item. When not
// forced, the direction is inferred from the item's runtime tag:
// forward if the forward input domain accepts it, else inverse if
// the inverse domain does, else the item fails with the stage's
// span.
func (s *Session) reversibleStream(def *stageDef, st *values.Stage, in stream, forced bool) stream {
	rd := def.reversible
	return func() (values.T, bool, error) {
		v, ok, err := in()
		if err != nil || !ok {
			return values.Null, false, err
		}
		var out values.T
		switch {
		case forced:
			out, err = rd.inverse(v, st.Span)
		case rd.fwdAccepts(v):
			out, err = rd.forward(v, st.Span)
		case rd.invAccepts(v):
			out, err = rd.inverse(v, st.Span)
		default:
			err = errors.E(st.Name, errors.TypeMismatch, st.Span,
				errors.Errorf("no direction of %s accepts %s", st.Name, v.Kind))
		}
		if err != nil {
			return values.Null, false, err
		}
		return out, true, nil
	}
}
