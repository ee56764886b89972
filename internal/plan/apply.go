package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoobzio/sqb"
	"github.com/zoobzio/sqb/dql"
)

// Result holds what applying a plan produced.
type Result struct {
	Registry *dql.Registry
	Builder  *dql.Builder
	Session  *sqb.Session
}

// Apply registers the plan's entities, builds the base query, wraps it in a
// session and composes every proposal into it, in declaration order.
func (p *Plan) Apply(ctx context.Context) (*Result, error) {
	registry := dql.NewRegistry()
	for _, e := range p.Entities {
		if err := registry.Define(e.Name, e.Fields, e.Associations, e.Collections...); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
	}

	q := p.Query
	b := dql.NewBuilder(registry)
	if _, err := b.Apply(sqb.FromOp{Entity: q.From.Entity, Alias: q.From.Alias, IndexBy: q.From.IndexBy}); err != nil {
		return nil, err
	}
	selects := q.Select
	if len(selects) == 0 {
		selects = []string{q.From.Alias}
	}
	if _, err := b.Apply(sqb.SelectOp{Parts: selects}); err != nil {
		return nil, err
	}

	s, err := sqb.Wrap(b, sqb.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if q.Distinct {
		if err := s.Distinct(true); err != nil {
			return nil, err
		}
	}
	for _, j := range q.Joins {
		if err := applyJoin(s, j); err != nil {
			return nil, fmt.Errorf("join %s: %w", j.Alias, err)
		}
	}
	for _, prm := range q.Parameters {
		bind := s.SetParameter
		if prm.Immutable {
			bind = s.SetImmutableParameter
		}
		if err := bind(prm.Name, prm.Value, sqb.ParamType(prm.Type)); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", prm.Name, err)
		}
	}
	if err := applyConditions(s.AndWhere, q.Where); err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	if err := applyConditions(s.OrWhere, q.OrWhere); err != nil {
		return nil, fmt.Errorf("or_where: %w", err)
	}
	if len(q.GroupBy) > 0 {
		if err := s.AddGroupBy(q.GroupBy...); err != nil {
			return nil, err
		}
	}
	if err := applyConditions(s.AndHaving, q.Having); err != nil {
		return nil, fmt.Errorf("having: %w", err)
	}
	for _, o := range q.OrderBy {
		if err := s.AddOrderBy(o.Field, o.Direction); err != nil {
			return nil, err
		}
	}
	if q.FirstResult > 0 {
		if err := s.SetFirstResult(q.FirstResult); err != nil {
			return nil, err
		}
	}
	if q.MaxResults > 0 {
		if err := s.SetMaxResults(q.MaxResults); err != nil {
			return nil, err
		}
	}

	for _, spec := range p.Proposals {
		proposal, err := buildProposal(s, spec)
		if err != nil {
			return nil, fmt.Errorf("proposal %s: %w", spec.Name, err)
		}
		use := s.AndWhere
		if spec.Use == "or" {
			use = s.OrWhere
		}
		if err := use(proposal); err != nil {
			return nil, fmt.Errorf("proposal %s: %w", spec.Name, err)
		}
	}

	return &Result{Registry: registry, Builder: b, Session: s}, nil
}

func applyConditions(apply func(...any) error, specs []ConditionSpec) error {
	if len(specs) == 0 {
		return nil
	}
	parts, err := ToConditions(specs)
	if err != nil {
		return err
	}
	return apply(parts...)
}

func joinOptions(j JoinSpec, rename func(string) string) []sqb.JoinOption {
	var opts []sqb.JoinOption
	switch {
	case j.With != "":
		opts = append(opts, sqb.With(rename(j.With)))
	case j.On != "":
		opts = append(opts, sqb.On(rename(j.On)))
	}
	if j.IndexBy != "" {
		opts = append(opts, sqb.IndexBy(j.IndexBy))
	}
	return opts
}

func applyJoin(s *sqb.Session, j JoinSpec) error {
	opts := joinOptions(j, func(text string) string { return text })
	switch {
	case j.Lazy && j.Kind == "left":
		return s.LazyLeftJoin(j.Target, j.Alias, opts...)
	case j.Lazy:
		return s.LazyInnerJoin(j.Target, j.Alias, opts...)
	case j.Kind == "left":
		return s.LeftJoin(j.Target, j.Alias, opts...)
	default:
		return s.InnerJoin(j.Target, j.Alias, opts...)
	}
}

// buildProposal turns a declaration into a proposal. Placeholders named by
// its parameter keys are rewritten to the proposal's generated names.
func buildProposal(s *sqb.Session, spec ProposalSpec) (*sqb.Proposal, error) {
	p := s.NewProposal(spec.Name)

	names := make(map[string]string, len(spec.Parameters))
	for _, prm := range spec.Parameters {
		key := prm.Key
		if key == "" {
			key = prm.Name
		}
		ph, err := p.WithUniqueImmutableParameter(key, prm.Value, sqb.ParamType(prm.Type))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		names[strings.Trim(key, ":")] = strings.TrimPrefix(ph, ":")
	}
	rename := func(text string) string { return sqb.RenamePlaceholders(text, names) }

	for _, j := range spec.Joins {
		opts := joinOptions(j, rename)
		switch {
		case j.Lazy && j.Kind == "left":
			p.LazyLeftJoin(j.Target, j.Alias, opts...)
		case j.Lazy:
			p.LazyInnerJoin(j.Target, j.Alias, opts...)
		case j.Kind == "left":
			p.LeftJoin(j.Target, j.Alias, opts...)
		default:
			p.InnerJoin(j.Target, j.Alias, opts...)
		}
	}

	where, err := ToConditions(spec.Where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	for _, w := range where {
		p.AndWhere(renameCondition(w, rename))
	}
	for _, nested := range spec.Nested {
		child, err := buildProposal(s, nested)
		if err != nil {
			return nil, fmt.Errorf("nested %s: %w", nested.Name, err)
		}
		p.AndWhere(child)
	}

	for _, sel := range spec.Select {
		p.AddSelect(rename(sel))
	}
	if len(spec.GroupBy) > 0 {
		p.AddGroupBy(spec.GroupBy...)
	}
	for _, o := range spec.OrderBy {
		p.AddOrderBy(rename(o.Field), o.Direction)
	}
	having, err := ToConditions(spec.Having)
	if err != nil {
		return nil, fmt.Errorf("having: %w", err)
	}
	for _, h := range having {
		p.AndHaving(renameCondition(h, rename))
	}
	return p, nil
}

func renameCondition(part any, rename func(string) string) any {
	switch v := part.(type) {
	case string:
		return rename(v)
	case *sqb.Composite:
		c := &sqb.Composite{Kind: v.Kind}
		for _, nested := range v.Parts {
			c.Add(renameCondition(nested, rename))
		}
		return c
	default:
		return part
	}
}
