// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"strconv"
	"strings"

	"github.com/plumblang/plumb/syntax"
)

// Plan renders the program's execution plan ("explain"): one header
// line per statement and one tagged line per stage, in source
// order. The plan is computed statically from the parsed program;
// composed stages are flattened into their linear forward form
// after "~" normalization, and identifiers whose binding is
// statically a stage expression are expanded in place. The output
// is identical across runs for identical input.
func Plan(stmts []*syntax.Stmt) string {
	p := &planner{bound: make(map[string][]planLine)}
	var lines []string
	for _, stmt := range stmts {
		if stmt.Kind == syntax.StmtBind {
			lines = append(lines, "binding "+stmt.Name)
			if stmt.Expr.Kind != syntax.ExprPipeline {
				if flat, ok := p.flatten(stmt.Expr); ok {
					p.bound[stmt.Name] = flat
				}
				continue
			}
		} else {
			lines = append(lines, "pipeline")
		}
		if stmt.Expr.Kind == syntax.ExprPipeline {
			lines = p.pipeline(lines, stmt.Expr)
		}
	}
	return strings.Join(lines, "\n")
}

// A planLine is one flattened atomic stage: its tag, its rendered
// call, and whether it runs in the forced-inverse direction.
type planLine struct {
	tag  string
	text string
	inv  bool
}

func (l planLine) render() string {
	text := l.text
	if l.inv {
		text = "~" + text
	}
	return "  [" + l.tag + "] " + text
}

type planner struct {
	bound map[string][]planLine
}

func (p *planner) pipeline(lines []string, e *syntax.Expr) []string {
	if src, ok := p.flattenOne(e.Left); ok && src.tag == TagSource.String() {
		lines = append(lines, src.render())
	}
	for _, stage := range e.List {
		flat, ok := p.flatten(stage)
		if !ok {
			lines = append(lines, "  [stage] "+stage.String())
			continue
		}
		for _, l := range flat {
			lines = append(lines, l.render())
		}
	}
	return lines
}

// flatten renders a stage expression as its linear sequence of
// atomics. It reports ok=false when the expression cannot be
// statically recognized as a stage.
func (p *planner) flatten(e *syntax.Expr) ([]planLine, bool) {
	switch e.Kind {
	case syntax.ExprCompose:
		left, ok := p.flatten(e.Left)
		if !ok {
			return nil, false
		}
		right, ok := p.flatten(e.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	case syntax.ExprInvert:
		inner, ok := p.flatten(e.Left)
		if !ok {
			return nil, false
		}
		// ~(a >> b) runs as ~b >> ~a.
		inverted := make([]planLine, len(inner))
		for i, l := range inner {
			l.inv = !l.inv
			inverted[len(inner)-1-i] = l
		}
		return inverted, true
	case syntax.ExprIdent:
		if flat, ok := p.bound[e.Ident]; ok {
			return append([]planLine{}, flat...), true
		}
	}
	if l, ok := p.flattenOne(e); ok {
		return []planLine{l}, true
	}
	return nil, false
}

// flattenOne renders a single atomic stage reference: a call to a
// catalog stage or a bare reversible identifier.
func (p *planner) flattenOne(e *syntax.Expr) (planLine, bool) {
	switch e.Kind {
	case syntax.ExprIdent:
		if def, ok := catalog[e.Ident]; ok && def.bare {
			return planLine{tag: def.tag.String(), text: def.name}, true
		}
	case syntax.ExprCall:
		name := e.Callee.CalleeName()
		if def, ok := catalog[name]; ok {
			return planLine{tag: def.tag.String(), text: renderCall(name, e)}, true
		}
	}
	return planLine{}, false
}

// renderCall summarizes a stage call's arguments. String literals
// render unquoted; everything else renders as surface syntax.
func renderCall(name string, e *syntax.Expr) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString("(")
	for i, arg := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		if arg.Name != "" {
			b.WriteString(arg.Name)
			b.WriteString("=")
		}
		if arg.Value.Kind == syntax.ExprStr {
			b.WriteString(arg.Value.Str)
		} else if arg.Value.Kind == syntax.ExprInt {
			b.WriteString(strconv.FormatInt(arg.Value.Int, 10))
		} else {
			b.WriteString(arg.Value.String())
		}
	}
	b.WriteString(")")
	return b.String()
}
