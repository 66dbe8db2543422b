// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package syntax

import (
	"testing"

	"github.com/plumblang/plumb/errors"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := newLexer([]byte(src))
	var toks []Token
	for {
		tok, err := lx.Scan()
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		if tok.Tok == TokEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestScan(t *testing.T) {
	toks := scanAll(t, `xs := input.json("xs") |> map(_ + 1);`)
	want := []struct {
		tok  Tok
		text string
	}{
		{TokIdent, "xs"},
		{TokOp, ":="},
		{TokIdent, "input"},
		{TokOp, "."},
		{TokIdent, "json"},
		{TokOp, "("},
		{TokStr, ""},
		{TokOp, ")"},
		{TokOp, "|>"},
		{TokIdent, "map"},
		{TokOp, "("},
		{TokIdent, "_"},
		{TokOp, "+"},
		{TokInt, ""},
		{TokOp, ")"},
		{TokOp, ";"},
	}
	if got, want := len(toks), len(want); got != want {
		t.Fatalf("got %v tokens, want %v", got, want)
	}
	for i, w := range want {
		if got := toks[i].Tok; got != w.tok {
			t.Errorf("token %d: got %v, want %v", i, got, w.tok)
		}
		if w.tok == TokIdent || w.tok == TokOp {
			if got := toks[i].Text; got != w.text {
				t.Errorf("token %d: got %q, want %q", i, got, w.text)
			}
		}
	}
	if got, want := toks[6].Str, "xs"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := toks[13].Int, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestScanOperators(t *testing.T) {
	toks := scanAll(t, ":= |> >> ~ == != <= >= && || + - * / < > =")
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	want := []string{":=", "|>", ">>", "~", "==", "!=", "<=", ">=", "&&", "||", "+", "-", "*", "/", "<", ">", "="}
	if len(texts) != len(want) {
		t.Fatalf("got %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestScanSpans(t *testing.T) {
	toks := scanAll(t, `ab + "cd"`)
	wantSpans := []errors.Span{
		errors.NewSpan(0, 2),
		errors.NewSpan(3, 4),
		errors.NewSpan(5, 9),
	}
	for i, want := range wantSpans {
		if got := toks[i].Span; got != want {
			t.Errorf("token %d: got %v, want %v", i, got, want)
		}
	}
}

func TestScanComments(t *testing.T) {
	toks := scanAll(t, "a // comment to end\nb # another\nc")
	if got, want := len(toks), 3; got != want {
		t.Fatalf("got %v tokens, want %v", got, want)
	}
	for i, name := range []string{"a", "b", "c"} {
		if got := toks[i].Text; got != name {
			t.Errorf("token %d: got %q, want %q", i, got, name)
		}
	}
}

func TestScanEscapes(t *testing.T) {
	for _, c := range []struct {
		src, want string
	}{
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"\"quoted\""`, `"quoted"`},
		{`"back\\slash"`, `back\slash`},
		{`"sla\/sh"`, "sla/sh"},
		{`"\u0041"`, "A"},
		{`"\u00e9"`, "é"},
		{`"\ud83d\ude00"`, "😀"},
		{`"\b\f\r"`, "\b\f\r"},
	} {
		toks := scanAll(t, c.src)
		if got, want := len(toks), 1; got != want {
			t.Fatalf("%s: got %v tokens, want %v", c.src, got, want)
		}
		if got := toks[0].Str; got != c.want {
			t.Errorf("%s: got %q, want %q", c.src, got, c.want)
		}
	}
}

func TestScanErrors(t *testing.T) {
	for _, src := range []string{
		`"unterminated`,
		`"bad \q escape"`,
		`99999999999999999999`,
		`@`,
	} {
		lx := newLexer([]byte(src))
		var err error
		for {
			var tok Token
			tok, err = lx.Scan()
			if err != nil || tok.Tok == TokEOF {
				break
			}
		}
		if !errors.Match(errors.LexError, err) {
			t.Errorf("%s: got %v, want LexError", src, err)
		}
	}
}
