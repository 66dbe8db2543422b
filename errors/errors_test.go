// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors

import (
	"encoding/json"
	"testing"
)

func TestE(t *testing.T) {
	err := E("apply", "base64", DecodeError, NewSpan(10, 16))
	e := Recover(err)
	if got, want := e.Op, "apply"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Kind, DecodeError; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := e.Span, NewSpan(10, 16); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(e.Arg), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := e.Arg[0], "base64"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChaining(t *testing.T) {
	inner := E("decode", DecodeError, NewSpan(3, 9))
	outer := Recover(E("apply", inner))
	if got, want := outer.Kind, DecodeError; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The span is inherited from the cause when the wrapper has none.
	if got, want := outer.Span, NewSpan(3, 9); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMatch(t *testing.T) {
	err := E("lookup", "users", StoreNotFound, NewSpan(0, 5))
	if !Match(StoreNotFound, err) {
		t.Error("kind did not match")
	}
	if Match(TypeMismatch, err) {
		t.Error("wrong kind matched")
	}
	if !Match(&Error{Op: "lookup", Arg: []string{"users"}, Kind: StoreNotFound}, err) {
		t.Error("structural match failed")
	}
	if Match(&Error{Op: "lookup", Arg: []string{"other"}, Kind: StoreNotFound}, err) {
		t.Error("mismatched arg matched")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for _, err := range []error{
		E("parse", ParseError, NewSpan(7, 12), New("unexpected \")\"")),
		E("add", Overflow, NewSpan(1, 6)),
		E("apply", "utf8", DecodeError, NewSpan(4, 8), E("decode", New("bad byte"))),
	} {
		p, merr := json.Marshal(Recover(err))
		if merr != nil {
			t.Fatal(merr)
		}
		e2 := new(Error)
		if uerr := json.Unmarshal(p, e2); uerr != nil {
			t.Fatal(uerr)
		}
		if !Match(Recover(err), e2) {
			t.Errorf("%v does not match %v after round trip", err, e2)
		}
	}
}

func TestRendering(t *testing.T) {
	err := E("filter", TypeMismatch, NewSpan(22, 29))
	if got, want := Recover(err).ErrorSeparator(": "), "filter @22..29: type mismatch"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIs(t *testing.T) {
	if !Is(DivideByZero, E("div", DivideByZero)) {
		t.Error("Is failed")
	}
	if Is(DivideByZero, nil) {
		t.Error("Is matched nil")
	}
}
