// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package plumb implements the host-facing surface of the plumb
// pipeline language: Compile parses a program and reports
// diagnostics; Run executes a program against host-supplied JSON
// fixtures and returns the tables, logs, and plan it produced. Both
// are pure functions of their string inputs — the interpreter has
// no access to the clock, the filesystem, the network, or
// randomness, so a run on fixed inputs is byte-identical across
// invocations.
package plumb

import (
	"bytes"
	"encoding/json"

	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/log"
	"github.com/plumblang/plumb/run"
	"github.com/plumblang/plumb/syntax"
	"github.com/plumblang/plumb/values"
)

// CompileResult reports whether a program parses, together with
// human-readable, span-tagged diagnostics when it does not.
type CompileResult struct {
	OK          bool   `json:"ok"`
	Diagnostics string `json:"diagnostics"`
}

// Compile parses program. It never panics; all failures are
// reported in the result's diagnostics.
func Compile(program string) CompileResult {
	if _, err := syntax.Parse(program); err != nil {
		return CompileResult{Diagnostics: err.Error()}
	}
	return CompileResult{OK: true}
}

// CompileJSON is Compile with a JSON-encoded result, for hosts that
// keep the boundary to plain strings.
func CompileJSON(program string) string {
	p, err := json.Marshal(Compile(program))
	if err != nil {
		return `{"ok":false,"diagnostics":"internal: result encoding failed"}`
	}
	return string(p)
}

// RunResult holds one run's outputs. TablesJSON maps table name to
// an array of rows (native JSON); LogsJSON maps log name to an
// array of strings; Explain is the plain-text plan, with a trailing
// diagnostic line if the run failed.
type RunResult struct {
	TablesJSON string `json:"tables_json"`
	LogsJSON   string `json:"logs_json"`
	Explain    string `json:"explain"`
}

// Run executes program against fixturesJSON, a JSON object mapping
// fixture names to arrays of elements. Run does not fail to the
// host: on a program error the result carries whatever sinks were
// written before the failure, and Explain ends with a diagnostic
// line naming the failing operation.
func Run(program, fixturesJSON string) RunResult {
	return RunWithLogger(program, fixturesJSON, nil)
}

// RunWithLogger is Run with debug tracing to the provided logger.
// The logger never influences the outputs.
func RunWithLogger(program, fixturesJSON string, logger *log.Logger) RunResult {
	stmts, err := syntax.Parse(program)
	if err != nil {
		return RunResult{
			TablesJSON: "{}",
			LogsJSON:   "{}",
			Explain:    "error: " + err.Error(),
		}
	}
	explain := run.Plan(stmts)

	fixtures, err := parseFixtures(fixturesJSON)
	if err != nil {
		return RunResult{
			TablesJSON: "{}",
			LogsJSON:   "{}",
			Explain:    appendDiagnostic(explain, err),
		}
	}

	sess := run.NewSession(fixtures, logger)
	runErr := sess.Exec(stmts)
	if runErr != nil {
		explain = appendDiagnostic(explain, runErr)
	}
	return RunResult{
		TablesJSON: encodeTables(&sess.Tables),
		LogsJSON:   encodeLogs(&sess.Logs),
		Explain:    explain,
	}
}

// RunJSON is Run with a JSON-encoded result.
func RunJSON(program, fixturesJSON string) string {
	p, err := json.Marshal(Run(program, fixturesJSON))
	if err != nil {
		return `{"tables_json":"{}","logs_json":"{}","explain":"internal: result encoding failed"}`
	}
	return string(p)
}

func appendDiagnostic(explain string, err error) string {
	line := "error: " + errors.Recover(err).ErrorSeparator(": ")
	if explain == "" {
		return line
	}
	return explain + "\n" + line
}

// parseFixtures parses the host's fixture object into named value
// arrays. Field order is preserved by the decoder, though fixture
// identity is by name only.
func parseFixtures(fixturesJSON string) (map[string][]values.T, error) {
	v, err := values.DecodeJSON([]byte(fixturesJSON))
	if err != nil {
		return nil, errors.E("fixtures", err)
	}
	if v.Kind != values.RecordKind {
		return nil, errors.E("fixtures", errors.BadArgument,
			errors.Errorf("fixtures must be a JSON object, got %s", v.Kind))
	}
	fixtures := make(map[string][]values.T)
	for _, f := range v.Rec.Fields() {
		if f.Value.Kind != values.ArrayKind {
			return nil, errors.E("fixtures", f.Name, errors.BadArgument,
				errors.Errorf("fixture %q must be a JSON array, got %s", f.Name, f.Value.Kind))
		}
		fixtures[f.Name] = f.Value.Array
	}
	return fixtures, nil
}

func encodeTables(tables *run.Tables) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, name := range tables.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, name)
		b.WriteByte(':')
		b.WriteByte('[')
		for j, row := range tables.Rows(name) {
			if j > 0 {
				b.WriteByte(',')
			}
			p, err := values.EncodeJSON(row)
			if err != nil {
				// ui.table validates rows at append time; this is
				// unreachable but kept total.
				p = []byte("null")
			}
			b.Write(p)
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}

func encodeLogs(logs *run.Logs) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, name := range logs.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, name)
		b.WriteByte(':')
		b.WriteByte('[')
		for j, line := range logs.Lines(name) {
			if j > 0 {
				b.WriteByte(',')
			}
			writeJSONString(&b, line)
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}

func writeJSONString(b *bytes.Buffer, s string) {
	p, _ := values.EncodeJSON(values.NewStr(s))
	b.Write(p)
}
