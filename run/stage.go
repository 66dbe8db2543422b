// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"encoding/base64"
	"sort"
	"unicode/utf8"

	"github.com/grailbio/base/digest"
	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/syntax"
	"github.com/plumblang/plumb/values"
)

// Tag classifies a stage in the catalog and in plans.
type Tag int

const (
	// TagSource stages produce a stream from a fixture.
	TagSource Tag = iota
	// TagPure stages transform values element-wise (or by whole-
	// stream collection) without effects.
	TagPure
	// TagReversible stages pair a forward and an inverse transform.
	TagReversible
	// TagSink stages write to a table or log.
	TagSink
	// TagEffect stages mutate session state without emitting.
	TagEffect
)

func (t Tag) String() string {
	switch t {
	case TagSource:
		return "source"
	case TagPure:
		return "pure"
	case TagReversible:
		return "reversible"
	case TagSink:
		return "sink"
	case TagEffect:
		return "effect"
	default:
		return "invalid"
	}
}

type paramKind int

const (
	// paramValue arguments are evaluated once at stage construction.
	paramValue paramKind = iota
	// paramExpr arguments are bound unevaluated and re-evaluated
	// per stream item with "_" rebound.
	paramExpr
)

type param struct {
	name     string
	kind     paramKind
	typ      values.Kind // required kind for value params; NullKind accepts any
	required bool
	def      *values.T // default for optional value params
}

func strDefault(s string) *values.T {
	v := values.NewStr(s)
	return &v
}

// reversibleDef pairs a stage's forward and inverse transforms with
// the input-tag predicates that drive direction inference.
type reversibleDef struct {
	forward, inverse       func(v values.T, span errors.Span) (values.T, error)
	fwdAccepts, invAccepts func(v values.T) bool
}

type applyFunc func(s *Session, st *values.Stage, in stream) (stream, error)

// A stageDef describes one built-in stage: its tag, its parameters,
// and its behavior. The catalog keeps all behavior here, indexed by
// name, so stage values themselves stay pure data.
type stageDef struct {
	name       string
	tag        Tag
	bare       bool // constructible from a bare identifier (json, utf8, base64)
	params     []param
	reversible *reversibleDef
	apply      applyFunc
}

var catalog = make(map[string]*stageDef)

func register(def *stageDef) {
	catalog[def.name] = def
}

func init() {
	register(&stageDef{
		name:   "input.json",
		tag:    TagSource,
		params: []param{{name: "name", typ: values.StrKind, required: true}},
		apply:  applyInputJSON,
	})
	register(&stageDef{
		name:   "map",
		tag:    TagPure,
		params: []param{{name: "expr", kind: paramExpr, required: true}},
		apply:  applyMap,
	})
	register(&stageDef{
		name:   "filter",
		tag:    TagPure,
		params: []param{{name: "expr", kind: paramExpr, required: true}},
		apply:  applyFilter,
	})
	register(&stageDef{
		name:   "flat_map",
		tag:    TagPure,
		params: []param{{name: "expr", kind: paramExpr, required: true}},
		apply:  applyFlatMap,
	})
	register(&stageDef{
		name: "json",
		tag:  TagReversible,
		bare: true,
		reversible: &reversibleDef{
			forward:    jsonForward,
			inverse:    jsonInverse,
			fwdAccepts: acceptsJSONForward,
			invAccepts: func(v values.T) bool { return v.Kind == values.BytesKind },
		},
	})
	register(&stageDef{
		name: "utf8",
		tag:  TagReversible,
		bare: true,
		reversible: &reversibleDef{
			forward:    utf8Forward,
			inverse:    utf8Inverse,
			fwdAccepts: func(v values.T) bool { return v.Kind == values.StrKind },
			invAccepts: func(v values.T) bool { return v.Kind == values.BytesKind },
		},
	})
	register(&stageDef{
		name: "base64",
		tag:  TagReversible,
		bare: true,
		reversible: &reversibleDef{
			forward:    base64Forward,
			inverse:    base64Inverse,
			fwdAccepts: func(v values.T) bool { return v.Kind == values.BytesKind },
			invAccepts: func(v values.T) bool { return v.Kind == values.StrKind },
		},
	})
	register(&stageDef{
		name:   "ui.table",
		tag:    TagSink,
		params: []param{{name: "name", typ: values.StrKind, required: true}},
		apply:  applyUITable,
	})
	register(&stageDef{
		name:   "ui.log",
		tag:    TagSink,
		params: []param{{name: "name", typ: values.StrKind, required: true}},
		apply:  applyUILog,
	})
	register(&stageDef{
		name: "kv.load",
		tag:  TagEffect,
		params: []param{
			{name: "store", typ: values.StrKind, required: true},
			{name: "key_field", typ: values.StrKind, def: strDefault("key")},
			{name: "value_field", typ: values.StrKind, def: strDefault("value")},
		},
		apply: applyKVLoad,
	})
	register(&stageDef{
		name: "lookup.kv",
		tag:  TagPure,
		params: []param{
			{name: "store", typ: values.StrKind, required: true},
			{name: "key", kind: paramExpr, required: true},
		},
		apply: applyLookupKV,
	})
	register(&stageDef{
		name: "lookup.batch_kv",
		tag:  TagPure,
		params: []param{
			{name: "store", typ: values.StrKind, required: true},
			{name: "key", kind: paramExpr, required: true},
			{name: "batch_size", typ: values.IntKind, required: true},
			{name: "within_ms", typ: values.IntKind, required: true},
		},
		// batch_size and within_ms shape batching in a timed
		// runtime; the deterministic core records them in the plan
		// and produces lookup.kv's exact output.
		apply: applyLookupKV,
	})
	register(&stageDef{
		name: "group.collect_all",
		tag:  TagPure,
		params: []param{
			{name: "by_key", kind: paramExpr, required: true},
			{name: "within_ms", typ: values.IntKind, required: true},
			{name: "limit", typ: values.IntKind, required: true},
		},
		apply: applyGroupCollectAll,
	})
	register(&stageDef{
		name: "group.topn_items",
		tag:  TagPure,
		params: []param{
			{name: "by_key", kind: paramExpr, required: true},
			{name: "n", typ: values.IntKind, required: true},
			{name: "order_by", kind: paramExpr, required: true},
			{name: "order", typ: values.StrKind, required: true},
		},
		apply: applyGroupTopN,
	})
	register(&stageDef{
		name: "rank.topk",
		tag:  TagPure,
		params: []param{
			{name: "k", typ: values.IntKind, required: true},
			{name: "by", kind: paramExpr, required: true},
			{name: "order", typ: values.StrKind, required: true},
			{name: "tie", typ: values.StrKind},
		},
		apply: applyRankTopK,
	})
	register(&stageDef{
		name: "rank.kmerge_arrays",
		tag:  TagPure,
		params: []param{
			{name: "by", kind: paramExpr, required: true},
			{name: "order", typ: values.StrKind, required: true},
			{name: "limit", typ: values.IntKind, required: true},
		},
		apply: applyRankKMerge,
	})
	register(&stageDef{
		name: "rbac.evaluate",
		tag:  TagPure,
		params: []param{
			{name: "principal_bindings", typ: values.StrKind, required: true},
			{name: "role_perms", typ: values.StrKind, required: true},
			{name: "resource_ancestors", typ: values.StrKind, required: true},
		},
		apply: applyRBACEvaluate,
	})
}

// constructStage binds a call's arguments against def's parameters
// and returns the atomic stage value. Value parameters are evaluated
// now; expression parameters are bound unevaluated. All named
// arguments follow the positional ones (the parser enforces this);
// positional arguments bind parameters in declaration order.
func (s *Session) constructStage(def *stageDef, call *syntax.Expr, ph *values.T) (*values.Stage, error) {
	bound := make(map[string]*syntax.Expr)
	for i, arg := range call.Args {
		var p *param
		if arg.Name == "" {
			if i >= len(def.params) {
				return nil, errors.E(def.name, errors.BadArgument, arg.Span,
					errors.Errorf("%s accepts at most %d arguments", def.name, len(def.params)))
			}
			p = &def.params[i]
		} else {
			for j := range def.params {
				if def.params[j].name == arg.Name {
					p = &def.params[j]
					break
				}
			}
			if p == nil {
				return nil, errors.E(def.name, errors.BadArgument, arg.Span,
					errors.Errorf("%s has no argument %q", def.name, arg.Name))
			}
		}
		if _, ok := bound[p.name]; ok {
			return nil, errors.E(def.name, errors.BadArgument, arg.Span,
				errors.Errorf("argument %q bound twice", p.name))
		}
		bound[p.name] = arg.Value
	}

	var args []values.StageArg
	for i := range def.params {
		p := &def.params[i]
		expr, ok := bound[p.name]
		if !ok {
			if p.required {
				return nil, errors.E(def.name, p.name, errors.MissingArgument, call.Span,
					errors.Errorf("%s requires argument %q", def.name, p.name))
			}
			if p.def != nil {
				args = append(args, values.StageArg{Name: p.name, Value: *p.def})
			}
			continue
		}
		if p.kind == paramExpr {
			args = append(args, values.StageArg{Name: p.name, Expr: expr})
			continue
		}
		v, err := s.evalValue(expr, ph)
		if err != nil {
			return nil, err
		}
		if p.typ != values.NullKind && v.Kind != p.typ {
			return nil, errors.E(def.name, p.name, errors.BadArgument, expr.Span,
				errors.Errorf("argument %q must be %s, got %s", p.name, p.typ, v.Kind))
		}
		args = append(args, values.StageArg{Name: p.name, Value: v})
	}
	return values.Atomic(def.name, args, call.Span), nil
}

// argValue returns the bound value of argument name, if set.
func argValue(st *values.Stage, name string) (values.T, bool) {
	for _, arg := range st.Args {
		if arg.Name == name && !arg.IsExpr() {
			return arg.Value, true
		}
	}
	return values.Null, false
}

func argStr(st *values.Stage, name string) string {
	v, _ := argValue(st, name)
	return v.Str
}

func argInt(st *values.Stage, name string) int64 {
	v, _ := argValue(st, name)
	return v.Int
}

// argExpr returns the bound expression of argument name.
func argExpr(st *values.Stage, name string) *syntax.Expr {
	for _, arg := range st.Args {
		if arg.Name == name && arg.IsExpr() {
			return arg.Expr
		}
	}
	return nil
}

// argOrder validates and returns the "order" argument: "asc" sorts
// ascending, "desc" descending.
func argOrder(st *values.Stage, name string) (desc bool, err error) {
	switch argStr(st, name) {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, errors.E(st.Name, errors.BadArgument, st.Span,
			errors.Errorf("argument %q must be \"asc\" or \"desc\"", name))
	}
}

// Sources.

func applyInputJSON(s *Session, st *values.Stage, in stream) (stream, error) {
	name := argStr(st, "name")
	items, ok := s.Fixtures[name]
	if !ok {
		return nil, errors.E("input.json", name, errors.MissingFixture, st.Span,
			errors.Errorf("fixture %q was not supplied", name))
	}
	// Each fixture element is emitted as the JSON encoding of that
	// element. The idiomatic `|> json` prelude then parses it back;
	// direct use exposes the bytes for utf8/base64 composition.
	i := 0
	return func() (values.T, bool, error) {
		if i >= len(items) {
			return values.Null, false, nil
		}
		item := items[i]
		i++
		p, err := values.EncodeJSON(item)
		if err != nil {
			return values.Null, false, err
		}
		return values.NewBytes(p), true, nil
	}, nil
}

// Pure element-wise stages.

func applyMap(s *Session, st *values.Stage, in stream) (stream, error) {
	expr := argExpr(st, "expr")
	return func() (values.T, bool, error) {
		v, ok, err := in()
		if err != nil || !ok {
			return values.Null, false, err
		}
		out, err := s.evalValue(expr, &v)
		if err != nil {
			return values.Null, false, err
		}
		return out, true, nil
	}, nil
}

func applyFilter(s *Session, st *values.Stage, in stream) (stream, error) {
	expr := argExpr(st, "expr")
	return func() (values.T, bool, error) {
		for {
			v, ok, err := in()
			if err != nil || !ok {
				return values.Null, false, err
			}
			keep, err := s.evalValue(expr, &v)
			if err != nil {
				return values.Null, false, err
			}
			if keep.Kind != values.BoolKind {
				return values.Null, false, errors.E("filter", errors.TypeMismatch, expr.Span,
					errors.Errorf("filter expression must yield Bool, got %s", keep.Kind))
			}
			if keep.Bool {
				return v, true, nil
			}
		}
	}, nil
}

func applyFlatMap(s *Session, st *values.Stage, in stream) (stream, error) {
	expr := argExpr(st, "expr")
	var pending []values.T
	return func() (values.T, bool, error) {
		for len(pending) == 0 {
			v, ok, err := in()
			if err != nil || !ok {
				return values.Null, false, err
			}
			out, err := s.evalValue(expr, &v)
			if err != nil {
				return values.Null, false, err
			}
			if out.Kind != values.ArrayKind {
				return values.Null, false, errors.E("flat_map", errors.TypeMismatch, expr.Span,
					errors.Errorf("flat_map expression must yield Array, got %s", out.Kind))
			}
			pending = append(pending, out.Array...)
		}
		v := pending[0]
		pending = pending[1:]
		return v, true, nil
	}, nil
}

// Reversible transforms.

func acceptsJSONForward(v values.T) bool {
	switch v.Kind {
	case values.BytesKind, values.UnitKind, values.StageKind:
		return false
	default:
		return true
	}
}

func jsonForward(v values.T, span errors.Span) (values.T, error) {
	p, err := values.EncodeJSON(v)
	if err != nil {
		return values.Null, errors.E("json", span, err)
	}
	return values.NewBytes(p), nil
}

func jsonInverse(v values.T, span errors.Span) (values.T, error) {
	var p []byte
	switch v.Kind {
	case values.BytesKind:
		p = v.Bytes
	case values.StrKind:
		p = []byte(v.Str)
	default:
		return values.Null, errors.E("json", errors.TypeMismatch, span,
			errors.Errorf("json inverse requires Bytes or Str, got %s", v.Kind))
	}
	out, err := values.DecodeJSON(p)
	if err != nil {
		return values.Null, errors.E("json", errors.DecodeError, span, err)
	}
	return out, nil
}

func utf8Forward(v values.T, span errors.Span) (values.T, error) {
	if v.Kind != values.StrKind {
		return values.Null, errors.E("utf8", errors.TypeMismatch, span,
			errors.Errorf("utf8 forward requires Str, got %s", v.Kind))
	}
	return values.NewBytes([]byte(v.Str)), nil
}

func utf8Inverse(v values.T, span errors.Span) (values.T, error) {
	if v.Kind != values.BytesKind {
		return values.Null, errors.E("utf8", errors.TypeMismatch, span,
			errors.Errorf("utf8 inverse requires Bytes, got %s", v.Kind))
	}
	if !utf8.Valid(v.Bytes) {
		return values.Null, errors.E("utf8", errors.DecodeError, span,
			errors.New("byte sequence is not well-formed UTF-8"))
	}
	return values.NewStr(string(v.Bytes)), nil
}

func base64Forward(v values.T, span errors.Span) (values.T, error) {
	if v.Kind != values.BytesKind {
		return values.Null, errors.E("base64", errors.TypeMismatch, span,
			errors.Errorf("base64 forward requires Bytes, got %s", v.Kind))
	}
	return values.NewStr(base64.StdEncoding.EncodeToString(v.Bytes)), nil
}

func base64Inverse(v values.T, span errors.Span) (values.T, error) {
	if v.Kind != values.StrKind {
		return values.Null, errors.E("base64", errors.TypeMismatch, span,
			errors.Errorf("base64 inverse requires Str, got %s", v.Kind))
	}
	p, err := base64.StdEncoding.DecodeString(v.Str)
	if err != nil {
		return values.Null, errors.E("base64", errors.DecodeError, span, err)
	}
	return values.NewBytes(p), nil
}

// Sinks and effects.

func applyUITable(s *Session, st *values.Stage, in stream) (stream, error) {
	name := argStr(st, "name")
	done := false
	return func() (values.T, bool, error) {
		if done {
			return values.Null, false, nil
		}
		done = true
		for {
			v, ok, err := in()
			if err != nil {
				return values.Null, false, err
			}
			if !ok {
				return values.Unit, true, nil
			}
			// Rows must have a JSON form; reject stage values here
			// rather than at serialization time.
			if _, err := values.EncodeJSON(v); err != nil {
				return values.Null, false, errors.E("ui.table", name, st.Span, err)
			}
			s.Tables.Append(name, v)
		}
	}, nil
}

func applyUILog(s *Session, st *values.Stage, in stream) (stream, error) {
	name := argStr(st, "name")
	done := false
	return func() (values.T, bool, error) {
		if done {
			return values.Null, false, nil
		}
		done = true
		for {
			v, ok, err := in()
			if err != nil {
				return values.Null, false, err
			}
			if !ok {
				return values.Unit, true, nil
			}
			p, err := values.EncodeJSON(v)
			if err != nil {
				return values.Null, false, errors.E("ui.log", name, st.Span, err)
			}
			s.Logs.Append(name, string(p))
		}
	}, nil
}

func applyKVLoad(s *Session, st *values.Stage, in stream) (stream, error) {
	var (
		storeName  = argStr(st, "store")
		keyField   = argStr(st, "key_field")
		valueField = argStr(st, "value_field")
	)
	done := false
	return func() (values.T, bool, error) {
		if done {
			return values.Null, false, nil
		}
		done = true
		kv := s.ensureStore(storeName)
		for {
			v, ok, err := in()
			if err != nil {
				return values.Null, false, err
			}
			if !ok {
				return values.Null, false, nil
			}
			if v.Kind != values.RecordKind {
				return values.Null, false, errors.E("kv.load", storeName, errors.MalformedStoreInput, st.Span,
					errors.Errorf("store input must be Record, got %s", v.Kind))
			}
			key, ok := v.Rec.Lookup(keyField)
			if !ok || key.Kind != values.StrKind {
				return values.Null, false, errors.E("kv.load", storeName, errors.MalformedStoreInput, st.Span,
					errors.Errorf("store input must carry a Str field %q", keyField))
			}
			value, ok := v.Rec.Lookup(valueField)
			if !ok {
				return values.Null, false, errors.E("kv.load", storeName, errors.MalformedStoreInput, st.Span,
					errors.Errorf("store input must carry a field %q", valueField))
			}
			kv.install(key.Str, value)
		}
	}, nil
}

// Lookup stages.

func applyLookupKV(s *Session, st *values.Stage, in stream) (stream, error) {
	var (
		storeName = argStr(st, "store")
		keyExpr   = argExpr(st, "key")
	)
	return func() (values.T, bool, error) {
		v, ok, err := in()
		if err != nil || !ok {
			return values.Null, false, err
		}
		kv, ok := s.store(storeName)
		if !ok {
			return values.Null, false, errors.E(st.Name, storeName, errors.StoreNotFound, st.Span,
				errors.Errorf("store %q has not been loaded", storeName))
		}
		key, err := s.evalValue(keyExpr, &v)
		if err != nil {
			return values.Null, false, err
		}
		// Non-string keys (including null from a missed field)
		// match nothing rather than failing the run.
		right := values.Null
		if key.Kind == values.StrKind {
			if found, ok := kv.lookup(key.Str); ok {
				right = found
			}
		}
		rec := values.NewRec()
		rec.Set("left", v)
		rec.Set("right", right)
		return values.NewRecord(rec), true, nil
	}, nil
}

// Grouping stages.

type group struct {
	key   values.T
	items []values.T
}

// collectGroups drains the upstream and groups every value by its
// evaluated key. Group order is the first-occurrence order of keys;
// items keep arrival order. Keys are hashed by value digest.
func (s *Session) collectGroups(in stream, byKey *syntax.Expr) ([]*group, error) {
	items, err := drain(in)
	if err != nil {
		return nil, err
	}
	var (
		groups []*group
		index  = make(map[digest.Digest]*group)
	)
	for _, v := range items {
		v := v
		key, err := s.evalValue(byKey, &v)
		if err != nil {
			return nil, err
		}
		d := values.Digest(key)
		g, ok := index[d]
		if !ok {
			g = &group{key: key}
			index[d] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, v)
	}
	return groups, nil
}

func groupRecord(g *group, items []values.T) values.T {
	rec := values.NewRec()
	rec.Set("key", g.key)
	rec.Set("items", values.NewArray(items))
	return values.NewRecord(rec)
}

func applyGroupCollectAll(s *Session, st *values.Stage, in stream) (stream, error) {
	byKey := argExpr(st, "by_key")
	limit := argInt(st, "limit")
	if limit < 0 {
		return nil, errors.E(st.Name, errors.BadArgument, st.Span, errors.New("limit must be non-negative"))
	}
	return collectStream(func() ([]values.T, error) {
		groups, err := s.collectGroups(in, byKey)
		if err != nil {
			return nil, err
		}
		out := make([]values.T, 0, len(groups))
		for _, g := range groups {
			items := g.items
			if int64(len(items)) > limit {
				items = items[:limit]
			}
			out = append(out, groupRecord(g, items))
		}
		return out, nil
	}), nil
}

func applyGroupTopN(s *Session, st *values.Stage, in stream) (stream, error) {
	var (
		byKey   = argExpr(st, "by_key")
		orderBy = argExpr(st, "order_by")
		n       = argInt(st, "n")
	)
	if n < 0 {
		return nil, errors.E(st.Name, errors.BadArgument, st.Span, errors.New("n must be non-negative"))
	}
	desc, err := argOrder(st, "order")
	if err != nil {
		return nil, err
	}
	return collectStream(func() ([]values.T, error) {
		groups, err := s.collectGroups(in, byKey)
		if err != nil {
			return nil, err
		}
		out := make([]values.T, 0, len(groups))
		for _, g := range groups {
			sorted, err := s.sortByKey(g.items, orderBy, desc, st)
			if err != nil {
				return nil, err
			}
			if int64(len(sorted)) > n {
				sorted = sorted[:n]
			}
			out = append(out, groupRecord(g, sorted))
		}
		return out, nil
	}), nil
}

// sortByKey stably sorts items by their evaluated comparison key.
// Keys must be all-I64 or all-Str; stability preserves arrival order
// across equal keys.
func (s *Session) sortByKey(items []values.T, by *syntax.Expr, desc bool, st *values.Stage) ([]values.T, error) {
	keys := make([]values.T, len(items))
	for i := range items {
		v := items[i]
		key, err := s.evalValue(by, &v)
		if err != nil {
			return nil, err
		}
		if key.Kind != values.IntKind && key.Kind != values.StrKind {
			return nil, errors.E(st.Name, errors.TypeMismatch, by.Span,
				errors.Errorf("comparison key must be I64 or Str, got %s", key.Kind))
		}
		if i > 0 && key.Kind != keys[0].Kind {
			return nil, errors.E(st.Name, errors.TypeMismatch, by.Span,
				errors.Errorf("mixed comparison keys: %s and %s", keys[0].Kind, key.Kind))
		}
		keys[i] = key
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := keys[order[i]], keys[order[j]]
		if desc {
			return values.Less(b, a)
		}
		return values.Less(a, b)
	})
	sorted := make([]values.T, len(items))
	for i, idx := range order {
		sorted[i] = items[idx]
	}
	return sorted, nil
}

// Ranking stages.

func applyRankTopK(s *Session, st *values.Stage, in stream) (stream, error) {
	by := argExpr(st, "by")
	k := argInt(st, "k")
	if k < 0 {
		return nil, errors.E(st.Name, errors.BadArgument, st.Span, errors.New("k must be non-negative"))
	}
	desc, err := argOrder(st, "order")
	if err != nil {
		return nil, err
	}
	return collectStream(func() ([]values.T, error) {
		items, err := drain(in)
		if err != nil {
			return nil, err
		}
		sorted, err := s.sortByKey(items, by, desc, st)
		if err != nil {
			return nil, err
		}
		if int64(len(sorted)) > k {
			sorted = sorted[:k]
		}
		return sorted, nil
	}), nil
}

func applyRankKMerge(s *Session, st *values.Stage, in stream) (stream, error) {
	by := argExpr(st, "by")
	limit := argInt(st, "limit")
	if limit < 0 {
		return nil, errors.E(st.Name, errors.BadArgument, st.Span, errors.New("limit must be non-negative"))
	}
	desc, err := argOrder(st, "order")
	if err != nil {
		return nil, err
	}
	var pending []values.T
	return func() (values.T, bool, error) {
		for len(pending) == 0 {
			v, ok, err := in()
			if err != nil || !ok {
				return values.Null, false, err
			}
			merged, err := s.kmerge(v, by, desc, limit, st)
			if err != nil {
				return values.Null, false, err
			}
			pending = merged
		}
		v := pending[0]
		pending = pending[1:]
		return v, true, nil
	}, nil
}

// kmerge merges an Array of individually pre-sorted Arrays into a
// single sorted sequence of up to limit values. Ties break toward
// the earlier list.
func (s *Session) kmerge(v values.T, by *syntax.Expr, desc bool, limit int64, st *values.Stage) ([]values.T, error) {
	if v.Kind != values.ArrayKind {
		return nil, errors.E(st.Name, errors.TypeMismatch, st.Span,
			errors.Errorf("kmerge input must be Array of Arrays, got %s", v.Kind))
	}
	lists := make([][]values.T, len(v.Array))
	for i, inner := range v.Array {
		if inner.Kind != values.ArrayKind {
			return nil, errors.E(st.Name, errors.TypeMismatch, st.Span,
				errors.Errorf("kmerge input must be Array of Arrays, got inner %s", inner.Kind))
		}
		lists[i] = inner.Array
	}
	key := func(v values.T) (values.T, error) {
		k, err := s.evalValue(by, &v)
		if err != nil {
			return values.Null, err
		}
		if k.Kind != values.IntKind && k.Kind != values.StrKind {
			return values.Null, errors.E(st.Name, errors.TypeMismatch, by.Span,
				errors.Errorf("comparison key must be I64 or Str, got %s", k.Kind))
		}
		return k, nil
	}
	var out []values.T
	heads := make([]int, len(lists))
	for int64(len(out)) < limit {
		best := -1
		var bestKey values.T
		for i := range lists {
			if heads[i] >= len(lists[i]) {
				continue
			}
			k, err := key(lists[i][heads[i]])
			if err != nil {
				return nil, err
			}
			if best < 0 {
				best, bestKey = i, k
				continue
			}
			if k.Kind != bestKey.Kind {
				return nil, errors.E(st.Name, errors.TypeMismatch, by.Span,
					errors.Errorf("mixed comparison keys: %s and %s", bestKey.Kind, k.Kind))
			}
			less := values.Less(k, bestKey)
			if desc {
				less = values.Less(bestKey, k)
			}
			if less {
				best, bestKey = i, k
			}
		}
		if best < 0 {
			break
		}
		out = append(out, lists[best][heads[best]])
		heads[best]++
	}
	return out, nil
}
