// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package run implements the plumb interpreter: the expression
// evaluator, the stage catalog, and the pull-based pipeline driver.
// A single Session owns all mutable state for one run — bindings,
// KV stores, tables, and logs — and nothing persists across runs.
package run

import (
	"github.com/grailbio/base/digest"
	"github.com/plumblang/plumb/log"
	"github.com/plumblang/plumb/values"
)

// Tables is the set of named table sinks, in first-write order.
type Tables struct {
	names []string
	rows  map[string][]values.T
}

// Append appends row to table name, creating it if needed.
func (t *Tables) Append(name string, row values.T) {
	if t.rows == nil {
		t.rows = make(map[string][]values.T)
	}
	if _, ok := t.rows[name]; !ok {
		t.names = append(t.names, name)
	}
	t.rows[name] = append(t.rows[name], row)
}

// Names returns the table names in first-write order.
func (t *Tables) Names() []string { return t.names }

// Rows returns the rows of table name in append order.
func (t *Tables) Rows(name string) []values.T { return t.rows[name] }

// Logs is the set of named log sinks, in first-write order.
type Logs struct {
	names []string
	lines map[string][]string
}

// Append appends line to log name, creating it if needed.
func (l *Logs) Append(name, line string) {
	if l.lines == nil {
		l.lines = make(map[string][]string)
	}
	if _, ok := l.lines[name]; !ok {
		l.names = append(l.names, name)
	}
	l.lines[name] = append(l.lines[name], line)
}

// Names returns the log names in first-write order.
func (l *Logs) Names() []string { return l.names }

// Lines returns the lines of log name in append order.
func (l *Logs) Lines(name string) []string { return l.lines[name] }

// A store is one KV store: a string-keyed map populated by kv.load
// and read by the lookup stages. Entries are hashed by the digest of
// their key value, the same scheme the grouping stages use.
type store struct {
	entries map[digest.Digest]values.T
}

func newStore() *store {
	return &store{entries: make(map[digest.Digest]values.T)}
}

func (s *store) install(key string, value values.T) {
	s.entries[values.Digest(values.NewStr(key))] = value
}

func (s *store) lookup(key string) (values.T, bool) {
	v, ok := s.entries[values.Digest(values.NewStr(key))]
	return v, ok
}

// A Session owns all mutable state for one run invocation.
type Session struct {
	// Log, if non-nil, receives debug traces of stage application.
	// It never influences the run's outputs.
	Log *log.Logger

	// Fixtures holds the host-supplied fixture arrays by name.
	Fixtures map[string][]values.T

	// Tables and Logs are the run's sink outputs.
	Tables Tables
	Logs   Logs

	env    map[string]result
	stores map[string]*store
}

// NewSession returns a fresh session over the provided fixtures.
func NewSession(fixtures map[string][]values.T, logger *log.Logger) *Session {
	return &Session{
		Log:      logger,
		Fixtures: fixtures,
		env:      make(map[string]result),
		stores:   make(map[string]*store),
	}
}

func (s *Session) store(name string) (*store, bool) {
	st, ok := s.stores[name]
	return st, ok
}

func (s *Session) ensureStore(name string) *store {
	if st, ok := s.stores[name]; ok {
		return st
	}
	st := newStore()
	s.stores[name] = st
	return st
}
