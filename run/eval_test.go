// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"testing"

	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/syntax"
	"github.com/plumblang/plumb/values"
)

func evalString(t *testing.T, src string, ph *values.T) (values.T, error) {
	t.Helper()
	e, err := syntax.ParseExpr(src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	s := NewSession(nil, nil)
	return s.evalValue(e, ph)
}

func mustEval(t *testing.T, src string, ph *values.T) values.T {
	t.Helper()
	v, err := evalString(t, src, ph)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	return v
}

func TestEvalArithmetic(t *testing.T) {
	for _, c := range []struct {
		src  string
		want values.T
	}{
		{"1 + 2", values.NewInt(3)},
		{"7 - 10", values.NewInt(-3)},
		{"6 * 7", values.NewInt(42)},
		{"7 / 2", values.NewInt(3)},
		{"-7 / 2", values.NewInt(-3)},
		{`"foo" + "bar"`, values.NewStr("foobar")},
		{"-(1 + 2)", values.NewInt(-3)},
	} {
		if got := mustEval(t, c.src, nil); !values.Equal(got, c.want) {
			t.Errorf("%s: got %s, want %s", c.src, values.Sprint(got), values.Sprint(c.want))
		}
	}
}

func TestEvalArithmeticErrors(t *testing.T) {
	for _, c := range []struct {
		src  string
		kind errors.Kind
	}{
		{"9223372036854775807 + 1", errors.Overflow},
		{"-9223372036854775807 - 2", errors.Overflow},
		{"4611686018427387904 * 4", errors.Overflow},
		{"1 / 0", errors.DivideByZero},
		{`1 + "x"`, errors.TypeMismatch},
		{`"x" + 1`, errors.TypeMismatch},
		{`true + true`, errors.TypeMismatch},
		{`"a" - "b"`, errors.TypeMismatch},
	} {
		_, err := evalString(t, c.src, nil)
		if !errors.Match(c.kind, err) {
			t.Errorf("%s: got %v, want %v", c.src, err, c.kind)
		}
	}
}

func TestEvalComparisons(t *testing.T) {
	for _, c := range []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"4 >= 4", true},
		{`"abc" < "abd"`, true},
		{`"b" >= "a"`, true},
		{"1 == 1", true},
		{"1 != 2", true},
		{`"x" == "x"`, true},
		{"true == true", true},
		{"true != false", true},
		{"[1, 2] == [1, 2]", true},
		{"{a: 1} == {a: 1}", true},
		{"{a: 1} == {a: 2}", false},
		{"null == null", true},
		{`1 == "1"`, false},
	} {
		got := mustEval(t, c.src, nil)
		if got.Kind != values.BoolKind || got.Bool != c.want {
			t.Errorf("%s: got %s, want %v", c.src, values.Sprint(got), c.want)
		}
	}
	if _, err := evalString(t, `1 < "2"`, nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
	if _, err := evalString(t, `true < false`, nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestEvalShortCircuit(t *testing.T) {
	// The right-hand side must not evaluate when the left decides.
	if got := mustEval(t, "false && 1 / 0 == 1", nil); got.Bool {
		t.Error("got true, want false")
	}
	if got := mustEval(t, "true || 1 / 0 == 1", nil); !got.Bool {
		t.Error("got false, want true")
	}
	if _, err := evalString(t, "true && 1 / 0 == 1", nil); !errors.Match(errors.DivideByZero, err) {
		t.Errorf("got %v, want DivideByZero", err)
	}
	if _, err := evalString(t, "1 && true", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestEvalField(t *testing.T) {
	ph := mustEval(t, `{a: 1, b: {c: "x"}}`, nil)
	if got := mustEval(t, "_.a", &ph); got.Int != 1 {
		t.Errorf("got %s, want 1", values.Sprint(got))
	}
	if got := mustEval(t, "_.b.c", &ph); got.Str != "x" {
		t.Errorf("got %s, want \"x\"", values.Sprint(got))
	}
	// A missing field yields null, not an error.
	if got := mustEval(t, "_.missing", &ph); got.Kind != values.NullKind {
		t.Errorf("got %s, want null", values.Sprint(got))
	}
	if _, err := evalString(t, "_.a.b", &ph); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestEvalPlaceholder(t *testing.T) {
	v := values.NewInt(9)
	if got := mustEval(t, "_ + 1", &v); got.Int != 10 {
		t.Errorf("got %s, want 10", values.Sprint(got))
	}
	if _, err := evalString(t, "_", nil); !errors.Match(errors.NameNotFound, err) {
		t.Errorf("got %v, want NameNotFound", err)
	}
}

func TestEvalNameNotFound(t *testing.T) {
	if _, err := evalString(t, "nope + 1", nil); !errors.Match(errors.NameNotFound, err) {
		t.Errorf("got %v, want NameNotFound", err)
	}
}

func TestEvalDefault(t *testing.T) {
	ph := mustEval(t, `{a: 1}`, nil)
	if got := mustEval(t, "default(_.a, 0)", &ph); got.Int != 1 {
		t.Errorf("got %s, want 1", values.Sprint(got))
	}
	if got := mustEval(t, "default(_.missing, 0)", &ph); got.Int != 0 {
		t.Errorf("got %s, want 0", values.Sprint(got))
	}
	if _, err := evalString(t, "default(1)", nil); !errors.Match(errors.MissingArgument, err) {
		t.Errorf("got %v, want MissingArgument", err)
	}
}

func TestEvalArrayHelpers(t *testing.T) {
	for _, c := range []struct {
		src, want string
	}{
		{"array.map([1, 2, 3], _ * 2)", "[2, 4, 6]"},
		{"array.filter([1, 2, 3, 4], _ > 2)", "[3, 4]"},
		{"array.flat_map([[1], [2, 3]], _)", "[1, 2, 3]"},
		{"array.flat_map([1, 2], [_, _])", "[1, 1, 2, 2]"},
		{"array.any([1, 2, 3], _ == 2)", "true"},
		{"array.any([1, 3], _ == 2)", "false"},
		{"array.contains([1, 2], 2)", "true"},
		{`array.contains(["a"], "b")`, "false"},
		{"array.filter([], _ > 0)", "[]"},
	} {
		got := mustEval(t, c.src, nil)
		if values.Sprint(got) != c.want {
			t.Errorf("%s: got %s, want %s", c.src, values.Sprint(got), c.want)
		}
	}
	// The placeholder inside array helpers is the element, not the
	// enclosing stream item.
	ph := mustEval(t, `{xs: [1, 2]}`, nil)
	got := mustEval(t, "array.map(_.xs, _ + 10)", &ph)
	if values.Sprint(got) != "[11, 12]" {
		t.Errorf("got %s, want [11, 12]", values.Sprint(got))
	}

	if _, err := evalString(t, "array.map(1, _)", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
	if _, err := evalString(t, "array.filter([1], _)", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
	if _, err := evalString(t, "array.flat_map([1], _)", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestEvalStageValues(t *testing.T) {
	v := mustEval(t, "base64 >> ~base64", nil)
	if got, want := v.Kind, values.StageKind; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := v.Stage.String(), "base64 >> ~base64"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	v = mustEval(t, "map(_ + 1)", nil)
	if got, want := v.Kind, values.StageKind; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := v.Stage.Name, "map"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	// ~ and >> on non-stage operands fail.
	if _, err := evalString(t, "~1", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
	if _, err := evalString(t, "1 >> 2", nil); !errors.Match(errors.TypeMismatch, err) {
		t.Errorf("got %v, want TypeMismatch", err)
	}
}

func TestConstructStageErrors(t *testing.T) {
	for _, c := range []struct {
		src  string
		kind errors.Kind
	}{
		{`input.json()`, errors.MissingArgument},
		{`input.json(1)`, errors.BadArgument},
		{`input.json("a", "b")`, errors.BadArgument},
		{`ui.table(name=1)`, errors.BadArgument},
		{`lookup.kv("users")`, errors.MissingArgument},
		{`rank.topk(k=1, by=_, order="desc", wrong=1)`, errors.BadArgument},
		{`rank.topk(k=1, by=_, order="desc", order="asc")`, errors.BadArgument},
	} {
		_, err := evalString(t, c.src, nil)
		if !errors.Match(c.kind, err) {
			t.Errorf("%s: got %v, want %v", c.src, err, c.kind)
		}
	}
}
