// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"github.com/plumblang/plumb/errors"
	"github.com/plumblang/plumb/values"
)

// rbac.evaluate decides access requests against three fixtures:
// principal_bindings rows {principal, role, resource, effect?}
// (effect defaults to "allow"), role_perms rows {role, actions},
// and resource_ancestors rows {resource, parent}. A binding matches
// a request when its resource is the request's resource or one of
// its ancestors and its role grants the requested action. A request
// is allowed when at least one "allow" binding matches and no
// "deny" binding does.

type rbacBinding struct {
	principal, role, resource, effect string
}

type rbacRules struct {
	bindings []rbacBinding
	perms    map[string]map[string]bool
	parents  map[string]string
}

func applyRBACEvaluate(s *Session, st *values.Stage, in stream) (stream, error) {
	rules, err := s.loadRBACRules(st)
	if err != nil {
		return nil, err
	}
	return func() (values.T, bool, error) {
		v, ok, err := in()
		if err != nil || !ok {
			return values.Null, false, err
		}
		decision, err := rules.decide(v, st)
		if err != nil {
			return values.Null, false, err
		}
		return decision, true, nil
	}, nil
}

func (s *Session) loadRBACRules(st *values.Stage) (*rbacRules, error) {
	rules := &rbacRules{
		perms:   make(map[string]map[string]bool),
		parents: make(map[string]string),
	}

	bindings, err := s.rbacFixture(st, "principal_bindings")
	if err != nil {
		return nil, err
	}
	for _, row := range bindings {
		rec, err := rbacRow(st, "principal_bindings", row)
		if err != nil {
			return nil, err
		}
		b := rbacBinding{effect: "allow"}
		if b.principal, err = rbacStr(st, "principal_bindings", rec, "principal"); err != nil {
			return nil, err
		}
		if b.role, err = rbacStr(st, "principal_bindings", rec, "role"); err != nil {
			return nil, err
		}
		if b.resource, err = rbacStr(st, "principal_bindings", rec, "resource"); err != nil {
			return nil, err
		}
		if effect, ok := rec.Lookup("effect"); ok {
			if effect.Kind != values.StrKind {
				return nil, errors.E("rbac.evaluate", errors.TypeMismatch, st.Span,
					errors.Errorf("binding effect must be Str, got %s", effect.Kind))
			}
			b.effect = effect.Str
		}
		rules.bindings = append(rules.bindings, b)
	}

	perms, err := s.rbacFixture(st, "role_perms")
	if err != nil {
		return nil, err
	}
	for _, row := range perms {
		rec, err := rbacRow(st, "role_perms", row)
		if err != nil {
			return nil, err
		}
		role, err := rbacStr(st, "role_perms", rec, "role")
		if err != nil {
			return nil, err
		}
		actions, ok := rec.Lookup("actions")
		if !ok || actions.Kind != values.ArrayKind {
			return nil, errors.E("rbac.evaluate", errors.TypeMismatch, st.Span,
				errors.Errorf("role_perms row must carry an Array field actions"))
		}
		set := rules.perms[role]
		if set == nil {
			set = make(map[string]bool)
			rules.perms[role] = set
		}
		for _, action := range actions.Array {
			if action.Kind != values.StrKind {
				return nil, errors.E("rbac.evaluate", errors.TypeMismatch, st.Span,
					errors.Errorf("role_perms actions must be Str, got %s", action.Kind))
			}
			set[action.Str] = true
		}
	}

	ancestors, err := s.rbacFixture(st, "resource_ancestors")
	if err != nil {
		return nil, err
	}
	for _, row := range ancestors {
		rec, err := rbacRow(st, "resource_ancestors", row)
		if err != nil {
			return nil, err
		}
		resource, err := rbacStr(st, "resource_ancestors", rec, "resource")
		if err != nil {
			return nil, err
		}
		parent, err := rbacStr(st, "resource_ancestors", rec, "parent")
		if err != nil {
			return nil, err
		}
		rules.parents[resource] = parent
	}
	return rules, nil
}

func (s *Session) rbacFixture(st *values.Stage, arg string) ([]values.T, error) {
	name := argStr(st, arg)
	items, ok := s.Fixtures[name]
	if !ok {
		return nil, errors.E("rbac.evaluate", name, errors.MissingFixture, st.Span,
			errors.Errorf("fixture %q was not supplied", name))
	}
	return items, nil
}

func rbacRow(st *values.Stage, fixture string, row values.T) (*values.Record, error) {
	if row.Kind != values.RecordKind {
		return nil, errors.E("rbac.evaluate", fixture, errors.TypeMismatch, st.Span,
			errors.Errorf("fixture row must be Record, got %s", row.Kind))
	}
	return row.Rec, nil
}

func rbacStr(st *values.Stage, fixture string, rec *values.Record, field string) (string, error) {
	v, ok := rec.Lookup(field)
	if !ok || v.Kind != values.StrKind {
		return "", errors.E("rbac.evaluate", fixture, errors.TypeMismatch, st.Span,
			errors.Errorf("row must carry a Str field %q", field))
	}
	return v.Str, nil
}

// ancestorChain returns resource together with its ancestors, root
// last. A visited set guards against cyclic parent data.
func (r *rbacRules) ancestorChain(resource string) []string {
	chain := []string{resource}
	visited := map[string]bool{resource: true}
	for {
		parent, ok := r.parents[resource]
		if !ok || visited[parent] {
			return chain
		}
		chain = append(chain, parent)
		visited[parent] = true
		resource = parent
	}
}

func (r *rbacRules) decide(v values.T, st *values.Stage) (values.T, error) {
	if v.Kind != values.RecordKind {
		return values.Null, errors.E("rbac.evaluate", errors.TypeMismatch, st.Span,
			errors.Errorf("request must be Record, got %s", v.Kind))
	}
	principal, err := rbacStr(st, "request", v.Rec, "principal")
	if err != nil {
		return values.Null, err
	}
	action, err := rbacStr(st, "request", v.Rec, "action")
	if err != nil {
		return values.Null, err
	}
	resource, err := rbacStr(st, "request", v.Rec, "resource")
	if err != nil {
		return values.Null, err
	}

	scope := make(map[string]bool)
	for _, res := range r.ancestorChain(resource) {
		scope[res] = true
	}

	var (
		matches           []values.T
		anyAllow, anyDeny bool
	)
	for _, b := range r.bindings {
		if b.principal != principal || !scope[b.resource] || !r.perms[b.role][action] {
			continue
		}
		switch b.effect {
		case "deny":
			anyDeny = true
		case "allow":
			anyAllow = true
		}
		match := values.NewRec()
		match.Set("role", values.NewStr(b.role))
		match.Set("resource", values.NewStr(b.resource))
		match.Set("effect", values.NewStr(b.effect))
		matches = append(matches, values.NewRecord(match))
	}

	decision := values.NewRec()
	decision.Set("principal", values.NewStr(principal))
	decision.Set("action", values.NewStr(action))
	decision.Set("resource", values.NewStr(resource))
	decision.Set("allow", values.NewBool(anyAllow && !anyDeny))
	decision.Set("matches", values.NewArray(matches))
	return values.NewRecord(decision), nil
}
