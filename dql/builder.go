package dql

import (
	"fmt"
	"strings"

	"github.com/zoobzio/sqb"
)

// Query parts accepted by ResetPartOp.
const (
	PartSelect   = sqb.PartSelect
	PartDistinct = sqb.PartDistinct
	PartFrom     = sqb.PartFrom
	PartJoin     = sqb.PartJoin
	PartWhere    = sqb.PartWhere
	PartGroupBy  = sqb.PartGroupBy
	PartHaving   = sqb.PartHaving
	PartOrderBy  = sqb.PartOrderBy
)

type root struct {
	entity  string
	alias   string
	indexBy string
}

func (r root) String() string {
	s := r.entity + " " + r.alias
	if r.indexBy != "" {
		s += " INDEX BY " + r.indexBy
	}
	return s
}

// Builder accumulates query parts and renders them as DQL. It implements
// sqb.Engine and sqb.FieldValidator.
//
// Joins are attached to the root their target path starts from; joins whose
// parent is another join follow that join's root, and anything else goes to
// the first root.
type Builder struct {
	registry *Registry

	distinct bool
	selects  []string
	roots    []root
	joins    map[string][]sqb.Join
	joinRoot map[string]string
	where    *sqb.Composite
	groupBy  []string
	having   *sqb.Composite
	orderBy  []string

	firstResult int
	maxResults  int

	params []*sqb.Parameter
}

// NewBuilder creates an empty builder resolving entities through registry.
func NewBuilder(registry *Registry) *Builder {
	return &Builder{
		registry: registry,
		joins:    make(map[string][]sqb.Join),
		joinRoot: make(map[string]string),
	}
}

// From adds a root and selects its alias when nothing is selected yet.
func (b *Builder) From(entity, alias string) *Builder {
	b.roots = append(b.roots, root{entity: entity, alias: alias})
	if len(b.selects) == 0 {
		b.selects = append(b.selects, alias)
	}
	return b
}

// RootAliases returns the aliases of the FROM roots.
func (b *Builder) RootAliases() []string {
	out := make([]string, len(b.roots))
	for i, r := range b.roots {
		out[i] = r.alias
	}
	return out
}

// RootEntities returns the entities of the FROM roots.
func (b *Builder) RootEntities() []string {
	out := make([]string, len(b.roots))
	for i, r := range b.roots {
		out[i] = r.entity
	}
	return out
}

// AllAliases returns root aliases followed by join aliases in join order.
func (b *Builder) AllAliases() []string {
	aliases := b.RootAliases()
	for _, r := range b.roots {
		for _, j := range b.joins[r.alias] {
			aliases = append(aliases, j.Alias)
		}
	}
	return aliases
}

// HasJoins reports whether any join has been added.
func (b *Builder) HasJoins() bool {
	for _, js := range b.joins {
		if len(js) > 0 {
			return true
		}
	}
	return false
}

// Join adds j under the root it belongs to.
func (b *Builder) Join(j sqb.Join) error {
	if j.Kind != sqb.JoinInner && j.Kind != sqb.JoinLeft {
		return fmt.Errorf("%w: %q", sqb.ErrUnsupportedJoinKind, j.Kind)
	}
	parent, _, _ := strings.Cut(j.Target, ".")
	r := b.findRootAlias(j.Alias, parent)
	b.joins[r] = append(b.joins[r], j)
	return nil
}

func (b *Builder) findRootAlias(alias, parent string) string {
	var r string
	switch {
	case b.isRootAlias(parent):
		r = parent
	case b.joinRoot[parent] != "":
		r = b.joinRoot[parent]
	case len(b.roots) > 0:
		r = b.roots[0].alias
	}
	b.joinRoot[alias] = r
	return r
}

func (b *Builder) isRootAlias(alias string) bool {
	for _, r := range b.roots {
		if r.alias == alias {
			return true
		}
	}
	return false
}

// Apply performs op and returns the builder.
func (b *Builder) Apply(op sqb.Op) (any, error) {
	switch o := op.(type) {
	case sqb.SelectOp:
		b.selects = nonEmpty(o.Parts)
	case sqb.AddSelectOp:
		b.selects = append(b.selects, nonEmpty(o.Parts)...)
	case sqb.DistinctOp:
		b.distinct = o.Flag
	case sqb.FromOp:
		b.roots = append(b.roots, root{entity: o.Entity, alias: o.Alias, indexBy: o.IndexBy})
	case sqb.WhereOp:
		c, err := replace(o.Parts)
		if err != nil {
			return nil, err
		}
		b.where = c
	case sqb.AndWhereOp:
		c, err := combine(b.where, sqb.KindAnd, o.Parts)
		if err != nil {
			return nil, err
		}
		b.where = c
	case sqb.OrWhereOp:
		c, err := combine(b.where, sqb.KindOr, o.Parts)
		if err != nil {
			return nil, err
		}
		b.where = c
	case sqb.GroupByOp:
		b.groupBy = nonEmpty(o.Parts)
	case sqb.AddGroupByOp:
		b.groupBy = append(b.groupBy, nonEmpty(o.Parts)...)
	case sqb.HavingOp:
		c, err := replace(o.Parts)
		if err != nil {
			return nil, err
		}
		b.having = c
	case sqb.AndHavingOp:
		c, err := combine(b.having, sqb.KindAnd, o.Parts)
		if err != nil {
			return nil, err
		}
		b.having = c
	case sqb.OrHavingOp:
		c, err := combine(b.having, sqb.KindOr, o.Parts)
		if err != nil {
			return nil, err
		}
		b.having = c
	case sqb.OrderByOp:
		b.orderBy = []string{ordering(o.Sort, o.Order)}
	case sqb.AddOrderByOp:
		b.orderBy = append(b.orderBy, ordering(o.Sort, o.Order))
	case sqb.FirstResultOp:
		b.firstResult = o.N
	case sqb.MaxResultsOp:
		b.maxResults = o.N
	case sqb.ResetPartOp:
		if err := b.reset(o.Part); err != nil {
			return nil, err
		}
	default:
		return nil, sqb.NewUnsupportedOperationError(op)
	}
	return b, nil
}

func (b *Builder) reset(part string) error {
	switch part {
	case PartSelect:
		b.selects = nil
	case PartDistinct:
		b.distinct = false
	case PartFrom:
		b.roots = nil
		b.joins = make(map[string][]sqb.Join)
		b.joinRoot = make(map[string]string)
	case PartJoin:
		b.joins = make(map[string][]sqb.Join)
		b.joinRoot = make(map[string]string)
	case PartWhere:
		b.where = nil
	case PartGroupBy:
		b.groupBy = nil
	case PartHaving:
		b.having = nil
	case PartOrderBy:
		b.orderBy = nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPart, part)
	}
	return nil
}

// replace builds a fresh clause: a single composite is kept as given, any
// other list of parts is grouped with AND.
func replace(parts []any) (*sqb.Composite, error) {
	if len(parts) == 1 {
		if c, ok := parts[0].(*sqb.Composite); ok {
			return checked(c.Clone())
		}
	}
	return checked(sqb.And(parts...))
}

// combine appends parts to an existing clause. A clause that is already a
// composite of the same kind grows in place; otherwise it is nested.
func combine(cur *sqb.Composite, kind sqb.CompositeKind, parts []any) (*sqb.Composite, error) {
	if cur != nil && cur.Kind == kind {
		next := cur.Clone()
		next.Add(parts...)
		return checked(next)
	}
	next := &sqb.Composite{Kind: kind}
	if cur != nil {
		next.Add(cur)
	}
	next.Add(parts...)
	return checked(next)
}

func checked(c *sqb.Composite) (*sqb.Composite, error) {
	if _, err := c.Render(); err != nil {
		return nil, err
	}
	return c, nil
}

func ordering(sort, order string) string {
	if order == "" {
		order = "ASC"
	}
	return sort + " " + strings.ToUpper(order)
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// FirstResult returns the result offset.
func (b *Builder) FirstResult() int { return b.firstResult }

// MaxResults returns the result limit, 0 when unset.
func (b *Builder) MaxResults() int { return b.maxResults }

// SetParameter binds value to name, updating an existing parameter in place.
func (b *Builder) SetParameter(name string, value any, typ sqb.ParamType) {
	if p := b.Parameter(name); p != nil {
		p.Value = value
		p.Type = typ
		return
	}
	b.params = append(b.params, &sqb.Parameter{Name: name, Value: value, Type: typ})
}

// Parameter returns the parameter named name, or nil.
func (b *Builder) Parameter(name string) *sqb.Parameter {
	name = strings.Trim(name, ":")
	for _, p := range b.params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Parameters returns the bound parameters in binding order.
func (b *Builder) Parameters() []*sqb.Parameter {
	return append([]*sqb.Parameter(nil), b.params...)
}

// SetParameters replaces every parameter.
func (b *Builder) SetParameters(params []*sqb.Parameter) {
	b.params = append([]*sqb.Parameter(nil), params...)
}

// DQL renders the query.
func (b *Builder) DQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT")
	if b.distinct {
		sb.WriteString(" DISTINCT")
	}
	if len(b.selects) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(b.selects, ", "))
	}

	if len(b.roots) > 0 {
		from := make([]string, 0, len(b.roots))
		for _, r := range b.roots {
			clause := r.String()
			for _, j := range b.joins[r.alias] {
				clause += " " + j.String()
			}
			from = append(from, clause)
		}
		sb.WriteString(" FROM ")
		sb.WriteString(strings.Join(from, ", "))
	}

	writeClause(&sb, " WHERE ", b.where)
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	writeClause(&sb, " HAVING ", b.having)
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	return sb.String()
}

func writeClause(sb *strings.Builder, keyword string, c *sqb.Composite) {
	if c == nil || c.Count() == 0 {
		return
	}
	// Parts were checked when the clause was built.
	text, err := c.Render()
	if err != nil || text == "" {
		return
	}
	sb.WriteString(keyword)
	sb.WriteString(text)
}

// Metadata returns the registry.
func (b *Builder) Metadata() sqb.Metadata {
	if b.registry == nil {
		return nil
	}
	return b.registry
}

// ValidateField delegates to the registry. Without a registry every field
// is accepted.
func (b *Builder) ValidateField(entity, field string) error {
	if b.registry == nil {
		return nil
	}
	return b.registry.ValidateField(entity, field)
}

// Clone returns a deep copy. Parameters are copied into new values.
func (b *Builder) Clone() sqb.Engine {
	c := &Builder{
		registry:    b.registry,
		distinct:    b.distinct,
		selects:     append([]string(nil), b.selects...),
		roots:       append([]root(nil), b.roots...),
		joins:       make(map[string][]sqb.Join, len(b.joins)),
		joinRoot:    make(map[string]string, len(b.joinRoot)),
		groupBy:     append([]string(nil), b.groupBy...),
		orderBy:     append([]string(nil), b.orderBy...),
		firstResult: b.firstResult,
		maxResults:  b.maxResults,
	}
	for k, v := range b.joins {
		c.joins[k] = append([]sqb.Join(nil), v...)
	}
	for k, v := range b.joinRoot {
		c.joinRoot[k] = v
	}
	if b.where != nil {
		c.where = b.where.Clone()
	}
	if b.having != nil {
		c.having = b.having.Clone()
	}
	for _, p := range b.params {
		cp := *p
		c.params = append(c.params, &cp)
	}
	return c
}

var (
	_ sqb.Engine         = (*Builder)(nil)
	_ sqb.FieldValidator = (*Builder)(nil)
	_ sqb.Metadata       = (*Registry)(nil)
)
