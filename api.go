// Package sqb lets several independent collaborators build one shared query.
//
// A Session wraps a query-building Engine and keeps track of which entity is
// bound to which alias. Joins can be declared eagerly or lazily: a lazy join is
// only added to the query once its alias is referenced, and joins it depends
// on are added first.
//
// # Quick Start
//
// Wrap an engine that has roots but no joins yet:
//
//	b := dql.NewBuilder(registry).From("Organization", "organization")
//	s, err := sqb.Wrap(b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Declare joins that may never be needed:
//
//	_ = s.LazyLeftJoin("organization.address", "address")
//	_ = s.LazyLeftJoin("organization.persons", "person")
//
// Reference an alias and its join is performed:
//
//	_ = s.AndWhere("address.city = :city")
//	// SELECT organization FROM Organization organization
//	//   LEFT JOIN organization.address address WHERE address.city = :city
//
// # Proposals
//
// A Proposal collects conditions, joins and parameters without touching the
// session. It is expanded the first time it is used in a condition position:
//
//	p := s.NewProposal("active")
//	ph, _ := p.WithUniqueImmutableParameter("status", 1)
//	p.AndWhere("person.status = " + ph).LazyLeftJoin("organization.persons", "person")
//	_ = s.AndWhere(p)
//
// Parameters of a proposal are bound under fresh immutable names, so two
// filters can never overwrite each other's values.
//
// # Features
//
//   - Alias lookups across roots, performed joins and lazy joins
//   - One join per entity, checked independently for lazy joins
//   - Recursive lazy join resolution with cycle detection
//   - Immutable parameters tracked by identity
//   - One-shot proposal expansion with nesting
//   - Integration with capitan for structured logging
package sqb

import (
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
)

// Session decorates an Engine with alias registries, lazy joins and
// immutable parameters. A Session is not safe for concurrent use.
type Session struct {
	engine    Engine
	joins     *joinRegistry
	lazyJoins *joinRegistry
	immutable []*Parameter
	resolving []string
	seq       int
	config    config
}

// Wrap decorates engine. Engines that already declare joins are rejected,
// since their joins would be unknown to the session's registries.
func Wrap(engine Engine, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if engine == nil {
		return nil, ErrNilEngine
	}
	if engine.HasJoins() {
		capitan.Error(cfg.ctx, SessionFailed, ErrorKey.Field(ErrJoinedQuery.Error()))
		return nil, ErrJoinedQuery
	}
	return &Session{
		engine:    engine,
		joins:     newJoinRegistry(),
		lazyJoins: newJoinRegistry(),
		config:    cfg,
	}, nil
}

// Unwrap returns the decorated engine.
func (s *Session) Unwrap() Engine {
	return s.engine
}

// DQL returns the engine's current query text.
func (s *Session) DQL() string {
	return s.engine.DQL()
}

// Tautology returns the always-true condition used for empty proposals.
func (s *Session) Tautology() string {
	return s.config.tautology
}

// Clone returns an independent session over a clone of the engine. Immutable
// parameters of the clone point at the clone's parameters.
func (s *Session) Clone() *Session {
	engine := s.engine.Clone()
	c := &Session{
		engine:    engine,
		joins:     s.joins.clone(),
		lazyJoins: s.lazyJoins.clone(),
		seq:       s.seq,
		config:    s.config,
	}
	for _, p := range s.immutable {
		if cp := engine.Parameter(p.Name); cp != nil {
			c.immutable = append(c.immutable, cp)
		}
	}
	return c
}

// Apply forwards op to the engine. Condition parts holding proposals are
// expanded first, and lazy joins are resolved afterwards when op can
// reference aliases. The session is returned in place of the engine when
// the engine returns itself.
func (s *Session) Apply(op Op) (any, error) {
	resolved, err := s.resolveOp(op)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Apply(resolved)
	if err != nil {
		return nil, s.fail(err)
	}
	if reset, ok := resolved.(ResetPartOp); ok {
		if err := s.forgetJoins(reset.Part); err != nil {
			return nil, err
		}
	}
	if resolved.ReferencesAliases() {
		if err := s.performLazyJoinsIfNeeded(); err != nil {
			return nil, err
		}
	}
	if e, ok := result.(Engine); ok && e == s.engine {
		return s, nil
	}
	return result, nil
}

func (s *Session) apply(op Op) error {
	_, err := s.Apply(op)
	return err
}

// Select replaces the select list.
func (s *Session) Select(parts ...string) error {
	return s.apply(SelectOp{Parts: parts})
}

// AddSelect appends to the select list.
func (s *Session) AddSelect(parts ...string) error {
	return s.apply(AddSelectOp{Parts: parts})
}

// Distinct toggles SELECT DISTINCT.
func (s *Session) Distinct(flag bool) error {
	return s.apply(DistinctOp{Flag: flag})
}

// From adds a root entity.
func (s *Session) From(entity, alias string, indexBy ...string) error {
	op := FromOp{Entity: entity, Alias: alias}
	if len(indexBy) > 0 {
		op.IndexBy = indexBy[0]
	}
	return s.apply(op)
}

// Where replaces the where clause. Parts are strings, composites or proposals.
func (s *Session) Where(parts ...any) error {
	return s.apply(WhereOp{Parts: parts})
}

// AndWhere adds parts to the where clause with AND.
func (s *Session) AndWhere(parts ...any) error {
	return s.apply(AndWhereOp{Parts: parts})
}

// OrWhere adds parts to the where clause with OR.
func (s *Session) OrWhere(parts ...any) error {
	return s.apply(OrWhereOp{Parts: parts})
}

// GroupBy replaces the group by list.
func (s *Session) GroupBy(parts ...string) error {
	return s.apply(GroupByOp{Parts: parts})
}

// AddGroupBy appends to the group by list.
func (s *Session) AddGroupBy(parts ...string) error {
	return s.apply(AddGroupByOp{Parts: parts})
}

// Having replaces the having clause.
func (s *Session) Having(parts ...any) error {
	return s.apply(HavingOp{Parts: parts})
}

// AndHaving adds parts to the having clause with AND.
func (s *Session) AndHaving(parts ...any) error {
	return s.apply(AndHavingOp{Parts: parts})
}

// OrHaving adds parts to the having clause with OR.
func (s *Session) OrHaving(parts ...any) error {
	return s.apply(OrHavingOp{Parts: parts})
}

// OrderBy replaces the ordering. order is ASC, DESC or empty.
func (s *Session) OrderBy(sort, order string) error {
	return s.apply(OrderByOp{Sort: sort, Order: order})
}

// AddOrderBy appends an ordering.
func (s *Session) AddOrderBy(sort, order string) error {
	return s.apply(AddOrderByOp{Sort: sort, Order: order})
}

// SetFirstResult sets the result offset.
func (s *Session) SetFirstResult(n int) error {
	return s.apply(FirstResultOp{N: n})
}

// SetMaxResults sets the result limit.
func (s *Session) SetMaxResults(n int) error {
	return s.apply(MaxResultsOp{N: n})
}

// ResetPart clears one query part. Resetting PartJoin or PartFrom also
// forgets the performed joins, so their entities can be joined again. Lazy
// joins that were never performed stay registered.
func (s *Session) ResetPart(part string) error {
	return s.apply(ResetPartOp{Part: part})
}

// forgetJoins keeps the join registry in step with an engine whose joins
// were just cleared.
func (s *Session) forgetJoins(part string) error {
	switch part {
	case PartFrom:
		if s.engine.HasJoins() {
			if _, err := s.engine.Apply(ResetPartOp{Part: PartJoin}); err != nil {
				return s.fail(err)
			}
		}
	case PartJoin:
	default:
		return nil
	}
	s.joins = newJoinRegistry()
	return nil
}

// resolveOp expands proposals held by the condition parts of op.
func (s *Session) resolveOp(op Op) (Op, error) {
	var err error
	switch o := op.(type) {
	case WhereOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case AndWhereOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case OrWhereOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case HavingOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case AndHavingOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case OrHavingOp:
		o.Parts, err = s.resolveParts(o.Parts)
		return o, err
	case OrderByOp:
		o.Order, err = validateDirection(o.Order)
		if err != nil {
			return nil, s.fail(err)
		}
		return o, nil
	case AddOrderByOp:
		o.Order, err = validateDirection(o.Order)
		if err != nil {
			return nil, s.fail(err)
		}
		return o, nil
	case nil:
		return nil, s.fail(NewUnsupportedOperationError(op))
	default:
		return op, nil
	}
}

func (s *Session) resolveParts(parts []any) ([]any, error) {
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		r, err := s.resolveCondition(p)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// resolveCondition turns a condition part into a string or a *Composite of
// resolved parts, expanding proposals into the session on the way.
func (s *Session) resolveCondition(part any) (any, error) {
	switch v := part.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return v, nil
	case *Proposal:
		return v.ExpandInto(s)
	case *Composite:
		parts, err := s.resolveParts(v.Parts)
		if err != nil {
			return nil, err
		}
		c := &Composite{Kind: v.Kind}
		c.Add(parts...)
		if c.Count() == 0 {
			return nil, nil
		}
		return c, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, s.fail(newUnsupportedExpressionError(part))
	}
}

// fail emits SessionFailed for err and returns it.
func (s *Session) fail(err error) error {
	capitan.Error(s.config.ctx, SessionFailed, ErrorKey.Field(err.Error()))
	return err
}
