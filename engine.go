package sqb

import (
	"strings"
)

// JoinKind selects between inner and left joins.
type JoinKind string

// Supported join kinds.
const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
)

// ConditionType qualifies the condition attached to a join.
type ConditionType string

// Join condition types.
const (
	ConditionWith ConditionType = "WITH"
	ConditionOn   ConditionType = "ON"
)

// ParamType is an optional type hint carried with a parameter value.
type ParamType string

// Join records one join declared through a Session.
type Join struct {
	Kind          JoinKind
	Target        string
	Alias         string
	ConditionType ConditionType
	Condition     string
	IndexBy       string
}

// String renders the join the way it appears in query text.
func (j Join) String() string {
	var b strings.Builder
	b.WriteString(string(j.Kind))
	b.WriteString(" JOIN ")
	b.WriteString(j.Target)
	b.WriteByte(' ')
	b.WriteString(j.Alias)
	if j.IndexBy != "" {
		b.WriteString(" INDEX BY ")
		b.WriteString(j.IndexBy)
	}
	if j.Condition != "" {
		ct := j.ConditionType
		if ct == "" {
			ct = ConditionWith
		}
		b.WriteByte(' ')
		b.WriteString(string(ct))
		b.WriteByte(' ')
		b.WriteString(j.Condition)
	}
	return b.String()
}

// args returns the text fragments of the join that may mention other aliases.
func (j Join) args() []string {
	return []string{j.Target, j.Condition, j.IndexBy}
}

// JoinOption configures a join at declaration time.
type JoinOption func(*Join)

// With attaches a WITH condition to the join.
func With(cond string) JoinOption {
	return func(j *Join) {
		j.ConditionType = ConditionWith
		j.Condition = cond
	}
}

// On attaches an ON condition to the join.
func On(cond string) JoinOption {
	return func(j *Join) {
		j.ConditionType = ConditionOn
		j.Condition = cond
	}
}

// IndexBy indexes the joined collection by the given field.
func IndexBy(field string) JoinOption {
	return func(j *Join) {
		j.IndexBy = field
	}
}

func newJoin(kind JoinKind, target, alias string, opts []JoinOption) Join {
	j := Join{Kind: kind, Target: target, Alias: alias}
	for _, opt := range opts {
		opt(&j)
	}
	return j
}

// Parameter is a value bound to a named or positional placeholder.
//
// Engines must update an existing *Parameter in place when it is rebound,
// since immutability is tracked by pointer identity.
type Parameter struct {
	Name  string
	Value any
	Type  ParamType
}

// Metadata answers entity questions on behalf of the engine.
type Metadata interface {
	// IsEntity reports whether name is a known entity type.
	IsEntity(name string) bool

	// AssociationTarget returns the entity type an association field points to.
	AssociationTarget(entity, field string) (string, error)
}

// FieldValidator is implemented by engines that can check field names against
// entity metadata. Session.WithAlias uses it when available.
type FieldValidator interface {
	ValidateField(entity, field string) error
}

// Engine is the query builder a Session decorates.
type Engine interface {
	// RootAliases and RootEntities are parallel slices describing the FROM roots.
	RootAliases() []string
	RootEntities() []string

	// AllAliases returns every alias declared on the engine, roots and joins.
	AllAliases() []string

	// HasJoins reports whether any join has been declared.
	HasJoins() bool

	// Join adds a join to the query.
	Join(j Join) error

	// Apply performs a query operation. Mutators return the engine itself.
	Apply(op Op) (any, error)

	SetParameter(name string, value any, typ ParamType)
	Parameter(name string) *Parameter
	Parameters() []*Parameter
	SetParameters(params []*Parameter)

	// DQL returns the current query text.
	DQL() string

	Metadata() Metadata
	Clone() Engine
}
