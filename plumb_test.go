// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plumb

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCompile(t *testing.T) {
	ok := Compile(`xs := input.json("xs") |> json;`)
	if !ok.OK {
		t.Fatalf("compile failed: %s", ok.Diagnostics)
	}
	if ok.Diagnostics != "" {
		t.Errorf("got diagnostics %q, want none", ok.Diagnostics)
	}

	bad := Compile(`xs := ;`)
	if bad.OK {
		t.Fatal("bad program compiled")
	}
	if !strings.Contains(bad.Diagnostics, "parse") {
		t.Errorf("diagnostics %q do not mention parsing", bad.Diagnostics)
	}
	if !strings.Contains(bad.Diagnostics, "..") {
		t.Errorf("diagnostics %q carry no span", bad.Diagnostics)
	}
}

func TestCompileJSON(t *testing.T) {
	var result CompileResult
	if err := json.Unmarshal([]byte(CompileJSON(`x := 1;`)), &result); err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Errorf("got %+v, want ok", result)
	}
}

func TestRunMapFilter(t *testing.T) {
	result := Run(`
xs := input.json("xs") |> json;
xs |> map(_ + 1) |> filter(_ > 2) |> ui.table("out");
`, `{"xs":[1,2,3]}`)
	if got, want := result.TablesJSON, `{"out":[3,4]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if got, want := result.LogsJSON, `{}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	want := `binding xs
  [source] input.json(xs)
  [reversible] json
pipeline
  [pure] map(_ + 1)
  [pure] filter(_ > 2)
  [sink] ui.table(out)`
	if result.Explain != want {
		t.Errorf("got explain:\n%s\nwant:\n%s", result.Explain, want)
	}
}

func TestRunReversibleChain(t *testing.T) {
	result := Run(`
chain := base64 >> ~base64;
input.json("bs") |> chain |> ui.table("t");
`, `{"bs":["aGk=","eA=="]}`)
	// Bytes rows render as byte-number arrays: the JSON encodings
	// of the fixture strings, round-tripped through base64.
	want := `{"t":[[34,97,71,107,61,34],[34,101,65,61,61,34]]}`
	if got := result.TablesJSON; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunUTF8RoundTrip(t *testing.T) {
	result := Run(`
input.json("ss") |> json |> utf8 |> ~utf8 |> ui.table("rt");
`, `{"ss":["hello","world"]}`)
	if got, want := result.TablesJSON, `{"rt":["hello","world"]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunKVJoin(t *testing.T) {
	result := Run(`
input.json("users") |> json |> kv.load("users");
input.json("events") |> json |> lookup.kv("users", key=_.user_id) |> ui.table("joined");
`, `{"users":[{"key":"u1","value":{"name":"Ada"}}],"events":[{"user_id":"u1"},{"user_id":"u2"}]}`)
	want := `{"joined":[{"left":{"user_id":"u1"},"right":{"name":"Ada"}},{"left":{"user_id":"u2"},"right":null}]}`
	if got := result.TablesJSON; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunGroupCollect(t *testing.T) {
	result := Run(`
input.json("xs") |> json |> group.collect_all(by_key=_.team, within_ms=1000, limit=10) |> ui.table("g");
`, `{"xs":[{"team":"a","id":1},{"team":"b","id":2},{"team":"a","id":3}]}`)
	want := `{"g":[{"key":"a","items":[{"team":"a","id":1},{"team":"a","id":3}]},{"key":"b","items":[{"team":"b","id":2}]}]}`
	if got := result.TablesJSON; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunTopK(t *testing.T) {
	result := Run(`
input.json("xs") |> json |> rank.topk(k=3, by=_, order="desc") |> ui.table("top");
`, `{"xs":[12,5,19,7,19,3]}`)
	if got, want := result.TablesJSON, `{"top":[19,19,12]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunForceInverseFails(t *testing.T) {
	result := Run(`
input.json("xs") |> json |> ~map(_ + 1) |> ui.table("t");
`, `{"xs":[1]}`)
	lines := strings.Split(result.Explain, "\n")
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "error: ") {
		t.Fatalf("explain does not end with a diagnostic: %q", last)
	}
	if !strings.Contains(last, "not reversible") {
		t.Errorf("diagnostic %q does not name the failure", last)
	}
	if got, want := result.TablesJSON, `{}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunPartialSinksOnFailure(t *testing.T) {
	result := Run(`
input.json("xs") |> json |> ui.table("seen");
input.json("xs") |> json |> map(1 / _) |> ui.table("bad");
`, `{"xs":[1,0]}`)
	if !strings.Contains(result.Explain, "error: ") {
		t.Fatal("explain carries no diagnostic")
	}
	if got, want := result.TablesJSON, `{"seen":[1,0],"bad":[1]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunParseFailure(t *testing.T) {
	result := Run(`xs := ;`, `{}`)
	if !strings.HasPrefix(result.Explain, "error: ") {
		t.Errorf("explain %q does not lead with the diagnostic", result.Explain)
	}
	if result.TablesJSON != "{}" || result.LogsJSON != "{}" {
		t.Errorf("outputs not empty: %s %s", result.TablesJSON, result.LogsJSON)
	}
}

func TestRunBadFixtures(t *testing.T) {
	for _, fixtures := range []string{
		`not json`,
		`[1,2]`,
		`{"xs":1}`,
	} {
		result := Run(`input.json("xs") |> ui.table("t");`, fixtures)
		if !strings.Contains(result.Explain, "error: ") {
			t.Errorf("%s: explain carries no diagnostic: %q", fixtures, result.Explain)
		}
	}
}

func TestRunLogs(t *testing.T) {
	result := Run(`
input.json("xs") |> json |> ui.log("trace");
`, `{"xs":[{"a":1},"s"]}`)
	if got, want := result.LogsJSON, `{"trace":["{\"a\":1}","\"s\""]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunRawInputBytes(t *testing.T) {
	// input.json without |> json exposes each element's JSON bytes.
	result := Run(`
input.json("xs") |> ui.table("raw");
`, `{"xs":[1,"a"]}`)
	// "1" is byte 49; "\"a\"" is bytes 34 97 34.
	if got, want := result.TablesJSON, `{"raw":[[49],[34,97,34]]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRunDeterminism(t *testing.T) {
	program := `
input.json("users") |> json |> kv.load("users");
input.json("events") |> json |> lookup.kv("users", key=_.k) |> ui.table("j");
input.json("events") |> json |> ui.log("l");
`
	fixtures := `{"users":[{"key":"a","value":1},{"key":"b","value":2}],"events":[{"k":"b"},{"k":"a"},{"k":"c"}]}`
	first := Run(program, fixtures)
	for i := 0; i < 10; i++ {
		if got := Run(program, fixtures); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestRunJSON(t *testing.T) {
	var result RunResult
	if err := json.Unmarshal([]byte(RunJSON(`1 |> ui.table("t");`, `{}`)), &result); err != nil {
		t.Fatal(err)
	}
	if got, want := result.TablesJSON, `{"t":[1]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
