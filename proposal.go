package sqb

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// proposalSeq makes proposal-local parameter names unique across proposals
// built concurrently in the same process.
var proposalSeq atomic.Uint64

type proposalJoin struct {
	join Join
	lazy bool
}

type proposalParam struct {
	name  string
	value any
	typ   ParamType
}

type ordering struct {
	sort  string
	order string
}

// Proposal is a detachable bag of conditions, joins, parameters and
// projections. Nothing reaches the session until the proposal is used in a
// condition position, where it is expanded exactly once.
type Proposal struct {
	session  *Session
	name     string
	where    []any
	joins    []proposalJoin
	params   []proposalParam
	selects  []string
	groupBy  []string
	orderBy  []ordering
	having   []any
	consumed bool
	counter  int
}

// NewProposal creates a proposal bound to s. An empty name is replaced by a
// generated, process-unique one.
func NewProposal(s *Session, name string) *Proposal {
	if name == "" {
		name = "proposal_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return &Proposal{session: s, name: name}
}

// NewProposal creates a proposal bound to the session.
func (s *Session) NewProposal(name string) *Proposal {
	return NewProposal(s, name)
}

// Name returns the proposal's name.
func (p *Proposal) Name() string { return p.name }

// IsConsumed reports whether the proposal has been expanded.
func (p *Proposal) IsConsumed() bool { return p.consumed }

// Session returns the session the proposal reads from.
func (p *Proposal) Session() *Session { return p.session }

// HasEntity delegates to the session.
func (p *Proposal) HasEntity(entity string) bool {
	return p.session.HasEntity(entity)
}

// AliasForEntity delegates to the session.
func (p *Proposal) AliasForEntity(entity string) (string, bool) {
	return p.session.AliasForEntity(entity)
}

// WithAlias delegates to the session.
func (p *Proposal) WithAlias(entity, property string) (string, error) {
	return p.session.WithAlias(entity, property)
}

// EntityForAlias delegates to the session.
func (p *Proposal) EntityForAlias(alias string) (string, bool) {
	return p.session.EntityForAlias(alias)
}

// AllAliases delegates to the session.
func (p *Proposal) AllAliases(includeLazy bool) []string {
	return p.session.AllAliases(includeLazy)
}

// Parameters returns the session's parameters, not the proposal's.
func (p *Proposal) Parameters() []*Parameter {
	return p.session.Parameters()
}

// Parameter delegates to the session.
func (p *Proposal) Parameter(key any) (*Parameter, error) {
	return p.session.Parameter(key)
}

// ImmutableParameters delegates to the session.
func (p *Proposal) ImmutableParameters() []*Parameter {
	return p.session.ImmutableParameters()
}

// HasConditions reports whether any where entry was added.
func (p *Proposal) HasConditions() bool { return len(p.where) > 0 }

// HasJoins reports whether any join, eager or lazy, was recorded.
func (p *Proposal) HasJoins() bool { return len(p.joins) > 0 }

// HasParameters reports whether the proposal holds parameters of its own.
func (p *Proposal) HasParameters() bool { return len(p.params) > 0 }

// IsEmpty reports whether the proposal holds nothing at all.
func (p *Proposal) IsEmpty() bool {
	return !p.HasConditions() && !p.HasJoins() && !p.HasParameters() &&
		len(p.selects) == 0 && len(p.groupBy) == 0 && len(p.orderBy) == 0 && len(p.having) == 0
}

// Where replaces the proposal's conditions.
func (p *Proposal) Where(conds ...any) *Proposal {
	p.where = append([]any(nil), conds...)
	return p
}

// AndWhere appends conditions.
func (p *Proposal) AndWhere(conds ...any) *Proposal {
	p.where = append(p.where, conds...)
	return p
}

// OrWhere appends conditions. Proposal conditions are always combined with
// AND; wrap alternatives in Or to get a disjunction.
func (p *Proposal) OrWhere(conds ...any) *Proposal {
	p.where = append(p.where, conds...)
	return p
}

func (p *Proposal) addJoin(kind JoinKind, lazy bool, target, alias string, opts []JoinOption) *Proposal {
	p.joins = append(p.joins, proposalJoin{join: newJoin(kind, target, alias, opts), lazy: lazy})
	return p
}

// Join records an inner join, performed on expansion.
func (p *Proposal) Join(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinInner, false, target, alias, opts)
}

// InnerJoin records an inner join, performed on expansion.
func (p *Proposal) InnerJoin(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinInner, false, target, alias, opts)
}

// LeftJoin records a left join, performed on expansion.
func (p *Proposal) LeftJoin(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinLeft, false, target, alias, opts)
}

// LazyJoin records an inner join registered as lazy on expansion.
func (p *Proposal) LazyJoin(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinInner, true, target, alias, opts)
}

// LazyInnerJoin records an inner join registered as lazy on expansion.
func (p *Proposal) LazyInnerJoin(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinInner, true, target, alias, opts)
}

// LazyLeftJoin records a left join registered as lazy on expansion.
func (p *Proposal) LazyLeftJoin(target, alias string, opts ...JoinOption) *Proposal {
	return p.addJoin(JoinLeft, true, target, alias, opts)
}

// AddSelect appends to the select list added on expansion.
func (p *Proposal) AddSelect(parts ...string) *Proposal {
	p.selects = append(p.selects, parts...)
	return p
}

// GroupBy appends to the group by list. Expansion never replaces the
// session's grouping, so GroupBy behaves as AddGroupBy.
func (p *Proposal) GroupBy(parts ...string) *Proposal {
	p.groupBy = append(p.groupBy, parts...)
	return p
}

// AddGroupBy appends to the group by list.
func (p *Proposal) AddGroupBy(parts ...string) *Proposal {
	p.groupBy = append(p.groupBy, parts...)
	return p
}

// OrderBy appends an ordering.
func (p *Proposal) OrderBy(sort, order string) *Proposal {
	p.orderBy = append(p.orderBy, ordering{sort: sort, order: order})
	return p
}

// AddOrderBy appends an ordering.
func (p *Proposal) AddOrderBy(sort, order string) *Proposal {
	p.orderBy = append(p.orderBy, ordering{sort: sort, order: order})
	return p
}

// Having appends having conditions; they are added to the session with AND.
func (p *Proposal) Having(conds ...any) *Proposal {
	p.having = append(p.having, conds...)
	return p
}

// AndHaving appends having conditions.
func (p *Proposal) AndHaving(conds ...any) *Proposal {
	p.having = append(p.having, conds...)
	return p
}

// OrHaving appends having conditions. Like OrWhere it does not build a
// disjunction; use Or for that.
func (p *Proposal) OrHaving(conds ...any) *Proposal {
	p.having = append(p.having, conds...)
	return p
}

// WithUniqueImmutableParameter stores value under a fresh local name and
// returns its placeholder. key must be a string or an int. The value is bound
// on the session, as an immutable parameter, only when the proposal expands.
func (p *Proposal) WithUniqueImmutableParameter(key any, value any, typ ...ParamType) (string, error) {
	if _, err := normalizeKey(key); err != nil {
		return "", err
	}
	name := "proposal_" + identifier(p.name) + "_" + strconv.Itoa(p.counter) + "_" +
		strconv.FormatUint(proposalSeq.Add(1), 10)
	p.counter++
	p.params = append(p.params, proposalParam{name: name, value: value, typ: firstType(typ)})
	return ":" + name, nil
}

// ClearWhere drops the where entries.
func (p *Proposal) ClearWhere() *Proposal { p.where = nil; return p }

// ClearJoins drops the recorded joins.
func (p *Proposal) ClearJoins() *Proposal { p.joins = nil; return p }

// ClearParameters drops the proposal's parameters. Placeholders already
// returned for them are left unbound.
func (p *Proposal) ClearParameters() *Proposal { p.params = nil; return p }

// ClearSelect drops the select additions.
func (p *Proposal) ClearSelect() *Proposal { p.selects = nil; return p }

// ClearGroupBy drops the group by additions.
func (p *Proposal) ClearGroupBy() *Proposal { p.groupBy = nil; return p }

// ClearOrderBy drops the orderings.
func (p *Proposal) ClearOrderBy() *Proposal { p.orderBy = nil; return p }

// ClearHaving drops the having conditions.
func (p *Proposal) ClearHaving() *Proposal { p.having = nil; return p }

// ClearAll empties every category.
func (p *Proposal) ClearAll() *Proposal {
	return p.ClearWhere().ClearJoins().ClearParameters().ClearSelect().ClearGroupBy().ClearOrderBy().ClearHaving()
}

// Clone returns an unconsumed copy. Nested proposals are cloned too, so the
// copy's conditions are independent of the original's.
func (p *Proposal) Clone() *Proposal {
	c := &Proposal{
		session: p.session,
		name:    p.name,
		joins:   append([]proposalJoin(nil), p.joins...),
		params:  append([]proposalParam(nil), p.params...),
		selects: append([]string(nil), p.selects...),
		groupBy: append([]string(nil), p.groupBy...),
		orderBy: append([]ordering(nil), p.orderBy...),
		counter: p.counter,
	}
	for _, w := range p.where {
		c.where = append(c.where, cloneCondition(w))
	}
	for _, h := range p.having {
		c.having = append(c.having, cloneCondition(h))
	}
	return c
}

// ExpandInto applies the proposal to s and returns its condition text.
//
// Parameters are bound as new immutable session parameters first, so join
// conditions and projections can be rewritten to the bound names. Joins are
// then added in recorded order and projections appended to the session's own.
// A consumed proposal adds nothing and yields the session's tautology.
func (p *Proposal) ExpandInto(s *Session) (string, error) {
	if p.consumed {
		return s.Tautology(), nil
	}

	names := make(map[string]string, len(p.params))
	for _, prm := range p.params {
		ph, err := s.WithUniqueImmutableParameter(prm.name, prm.value, prm.typ)
		if err != nil {
			return "", err
		}
		names[prm.name] = strings.TrimPrefix(ph, ":")
	}

	for _, j := range p.joins {
		join := j.join
		join.Condition = RenamePlaceholders(join.Condition, names)
		if err := s.addJoin(join, j.lazy); err != nil {
			return "", err
		}
	}

	if err := p.applyProjections(s, names); err != nil {
		return "", err
	}

	cond, err := p.buildCondition(s)
	if err != nil {
		return "", err
	}
	cond = RenamePlaceholders(cond, names)
	p.consumed = true

	capitan.Info(s.config.ctx, ProposalExpanded,
		ProposalKey.Field(p.name),
		ConditionKey.Field(cond),
	)
	return cond, nil
}

func (p *Proposal) applyProjections(s *Session, names map[string]string) error {
	rename := func(parts []string) []string {
		out := make([]string, len(parts))
		for i, part := range parts {
			out[i] = RenamePlaceholders(part, names)
		}
		return out
	}
	if len(p.selects) > 0 {
		if err := s.AddSelect(rename(p.selects)...); err != nil {
			return err
		}
	}
	if len(p.groupBy) > 0 {
		if err := s.AddGroupBy(rename(p.groupBy)...); err != nil {
			return err
		}
	}
	for _, o := range p.orderBy {
		if err := s.AddOrderBy(RenamePlaceholders(o.sort, names), o.order); err != nil {
			return err
		}
	}
	if len(p.having) > 0 {
		having := make([]any, len(p.having))
		for i, h := range p.having {
			having[i] = renameCondition(h, names)
		}
		if err := s.AndHaving(having...); err != nil {
			return err
		}
	}
	return nil
}

// renameCondition rewrites placeholders in a string or, recursively, in the
// parts of a composite. Other parts are returned as they are.
func renameCondition(part any, names map[string]string) any {
	switch v := part.(type) {
	case string:
		return RenamePlaceholders(v, names)
	case *Composite:
		c := &Composite{Kind: v.Kind, Parts: make([]any, len(v.Parts))}
		for i, nested := range v.Parts {
			c.Parts[i] = renameCondition(nested, names)
		}
		return c
	default:
		return part
	}
}

// condPart is one rendered where entry. grouped is set once the entry is
// already enclosed in parentheses.
type condPart struct {
	text    string
	grouped bool
}

// buildCondition joins the where entries with AND. Nested proposals are
// expanded and parenthesized; entries holding their own AND or OR are
// parenthesized when there is more than one entry.
func (p *Proposal) buildCondition(s *Session) (string, error) {
	parts := make([]condPart, 0, len(p.where))
	for _, w := range p.where {
		switch v := w.(type) {
		case nil:
		case *Proposal:
			text, err := v.ExpandInto(s)
			if err != nil {
				return "", err
			}
			parts = append(parts, condPart{text: "(" + text + ")", grouped: true})
		case *Composite:
			resolved, err := s.resolveCondition(v)
			if err != nil {
				return "", err
			}
			c, ok := resolved.(*Composite)
			if !ok {
				continue
			}
			text, err := c.Render()
			if err != nil {
				return "", s.fail(err)
			}
			if c.Count() > 1 {
				parts = append(parts, condPart{text: "(" + text + ")", grouped: true})
				continue
			}
			parts = append(parts, condPart{text: text})
		case string:
			if strings.TrimSpace(v) != "" {
				parts = append(parts, condPart{text: v})
			}
		case fmt.Stringer:
			parts = append(parts, condPart{text: v.String()})
		default:
			return "", s.fail(newUnsupportedExpressionError(w))
		}
	}

	switch len(parts) {
	case 0:
		return s.Tautology(), nil
	case 1:
		return parts[0].text, nil
	}
	texts := make([]string, len(parts))
	for i, part := range parts {
		texts[i] = part.text
		if !part.grouped && logicalOperator.MatchString(part.text) {
			texts[i] = "(" + part.text + ")"
		}
	}
	return "(" + strings.Join(texts, " AND ") + ")", nil
}

// identifier replaces characters that cannot appear in a placeholder name.
func identifier(name string) string {
	b := []byte(name)
	for i, c := range b {
		if !isIdentPart(c) || c >= 0x80 {
			b[i] = '_'
		}
	}
	return string(b)
}
