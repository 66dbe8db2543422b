// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package syntax

import (
	"testing"

	"github.com/plumblang/plumb/errors"
)

func mustParse(t *testing.T, src string) []*Stmt {
	t.Helper()
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	return stmts
}

func mustParseExpr(t *testing.T, src string) *Expr {
	t.Helper()
	e, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	return e
}

func TestParseProgram(t *testing.T) {
	stmts := mustParse(t, `
xs := input.json("xs") |> json;
xs |> map(_ + 1) |> filter(_ > 2) |> ui.table("out");
`)
	if got, want := len(stmts), 2; got != want {
		t.Fatalf("got %v statements, want %v", got, want)
	}
	bind := stmts[0]
	if got, want := bind.Kind, StmtBind; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := bind.Name, "xs"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := bind.Expr.Kind, ExprPipeline; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(bind.Expr.List), 1; got != want {
		t.Errorf("got %v stages, want %v", got, want)
	}
	if got, want := bind.Expr.Left.Kind, ExprCall; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := bind.Expr.Left.Callee.CalleeName(), "input.json"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	pipe := stmts[1]
	if got, want := pipe.Kind, StmtExpr; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(pipe.Expr.List), 3; got != want {
		t.Fatalf("got %v stages, want %v", got, want)
	}
	if got, want := pipe.Expr.Left.Kind, ExprIdent; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseComposeInvert(t *testing.T) {
	stmts := mustParse(t, `chain := base64 >> ~base64;`)
	e := stmts[0].Expr
	if got, want := e.Kind, ExprCompose; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Left.Kind, ExprIdent; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Right.Kind, ExprInvert; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Right.Left.Ident, "base64"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	// Compose is left-associative.
	e = mustParseExpr(t, "a >> b >> c")
	if got, want := e.Kind, ExprCompose; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Left.Kind, ExprCompose; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Right.Ident, "c"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParsePrecedence(t *testing.T) {
	e := mustParseExpr(t, "1 + 2 * 3")
	if got, want := e.Ident, "+"; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Right.Ident, "*"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e = mustParseExpr(t, "(1 + 2) * 3")
	if got, want := e.Ident, "*"; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Left.Ident, "+"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e = mustParseExpr(t, "_ + 1 > 2 && x < 3")
	if got, want := e.Ident, "&&"; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Left.Ident, ">"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e = mustParseExpr(t, "a || b && c")
	if got, want := e.Ident, "||"; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Right.Ident, "&&"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Comparison does not chain.
	if _, err := ParseExpr("1 < 2 < 3"); err == nil {
		t.Error("chained comparison parsed")
	}
}

func TestParseLiterals(t *testing.T) {
	e := mustParseExpr(t, `{a: [1, "x", true, null], b: rec.field, c: -42}`)
	if got, want := e.Kind, ExprRecord; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(e.Fields), 3; got != want {
		t.Fatalf("got %v fields, want %v", got, want)
	}
	arr := e.Fields[0].Value
	if got, want := arr.Kind, ExprArray; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(arr.List), 4; got != want {
		t.Fatalf("got %v items, want %v", got, want)
	}
	if got, want := arr.List[3].Kind, ExprNull; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Fields[1].Value.Kind, ExprField; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Fields[2].Value.Int, int64(-42); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseNamedArgs(t *testing.T) {
	e := mustParseExpr(t, `group.collect_all(by_key=_.team, within_ms=1000, limit=10)`)
	if got, want := e.Kind, ExprCall; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(e.Args), 3; got != want {
		t.Fatalf("got %v args, want %v", got, want)
	}
	for i, name := range []string{"by_key", "within_ms", "limit"} {
		if got := e.Args[i].Name; got != name {
			t.Errorf("arg %d: got %q, want %q", i, got, name)
		}
	}

	e = mustParseExpr(t, `lookup.kv("users", key=_.user_id)`)
	if got, want := e.Args[0].Name, ""; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := e.Args[1].Name, "key"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := ParseExpr(`f(key=1, 2)`); !errors.Match(errors.ParseError, firstErr(err)) {
		t.Errorf("got %v, want ParseError", err)
	}
}

func firstErr(err error) error {
	if errs, ok := err.(ParseErrors); ok && len(errs) > 0 {
		return errs[0]
	}
	return err
}

func TestParseSpans(t *testing.T) {
	src := `xs |> map(_ + 1);`
	stmts := mustParse(t, src)
	stmt := stmts[0]
	if got, want := stmt.Span, errors.NewSpan(0, len(src)); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	call := stmt.Expr.List[0]
	if got, want := call.Span, errors.NewSpan(6, 16); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	add := call.Args[0].Value
	if got, want := add.Span, errors.NewSpan(10, 15); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		`xs := ;`,
		`xs |> ;`,
		`{a: 1, a: 2};`,
		`f(,);`,
		`xs`,     // missing semicolon
		`(1 + 2`, // unclosed paren
		`"unterminated`,
	} {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("%s: parsed", src)
			continue
		}
		e := firstErr(err)
		if !errors.Match(errors.ParseError, e) && !errors.Match(errors.LexError, e) {
			t.Errorf("%s: got %v, want ParseError or LexError", src, err)
		}
	}
}

func TestExprString(t *testing.T) {
	for _, src := range []string{
		`input.json("xs") |> json |> ui.table("out")`,
		`map(_ + 1)`,
		`base64 >> ~base64`,
		`{a: [1, 2], b: _.f}`,
		`default(_.x, 0)`,
	} {
		e := mustParseExpr(t, src)
		if got := e.String(); got != src {
			t.Errorf("got %q, want %q", got, src)
		}
	}
}
