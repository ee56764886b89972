package sqb

import (
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
)

// joinRegistry holds at most one join per entity, in registration order.
type joinRegistry struct {
	order   []string
	records map[string]Join
}

func newJoinRegistry() *joinRegistry {
	return &joinRegistry{records: make(map[string]Join)}
}

func (r *joinRegistry) has(entity string) bool {
	_, ok := r.records[entity]
	return ok
}

func (r *joinRegistry) get(entity string) (Join, bool) {
	j, ok := r.records[entity]
	return j, ok
}

func (r *joinRegistry) add(entity string, j Join) {
	if !r.has(entity) {
		r.order = append(r.order, entity)
	}
	r.records[entity] = j
}

func (r *joinRegistry) remove(entity string) {
	if !r.has(entity) {
		return
	}
	delete(r.records, entity)
	for i, e := range r.order {
		if e == entity {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *joinRegistry) entityForAlias(alias string) (string, bool) {
	for _, entity := range r.order {
		if r.records[entity].Alias == alias {
			return entity, true
		}
	}
	return "", false
}

func (r *joinRegistry) aliases() []string {
	out := make([]string, 0, len(r.order))
	for _, entity := range r.order {
		out = append(out, r.records[entity].Alias)
	}
	return out
}

func (r *joinRegistry) len() int {
	return len(r.order)
}

func (r *joinRegistry) clone() *joinRegistry {
	c := &joinRegistry{
		order:   append([]string(nil), r.order...),
		records: make(map[string]Join, len(r.records)),
	}
	for k, v := range r.records {
		c.records[k] = v
	}
	return c
}

// HasEntity reports whether entity is bound to any alias, lazy joins included.
func (s *Session) HasEntity(entity string) bool {
	_, ok := s.AliasForEntity(entity)
	return ok
}

// AliasForEntity returns the alias of entity, looking at the query roots,
// then performed joins, then lazy joins.
func (s *Session) AliasForEntity(entity string) (string, bool) {
	roots := s.engine.RootEntities()
	for i, e := range roots {
		if e == entity {
			return s.engine.RootAliases()[i], true
		}
	}
	if j, ok := s.joins.get(entity); ok {
		return j.Alias, true
	}
	if j, ok := s.lazyJoins.get(entity); ok {
		return j.Alias, true
	}
	return "", false
}

// EntityForAlias returns the entity bound to alias, with the same priority
// as AliasForEntity.
func (s *Session) EntityForAlias(alias string) (string, bool) {
	for i, a := range s.engine.RootAliases() {
		if a == alias {
			return s.engine.RootEntities()[i], true
		}
	}
	if entity, ok := s.joins.entityForAlias(alias); ok {
		return entity, true
	}
	return s.lazyJoins.entityForAlias(alias)
}

// WithAlias returns "alias.property" for entity.
func (s *Session) WithAlias(entity, property string) (string, error) {
	alias, ok := s.AliasForEntity(entity)
	if !ok {
		return "", s.fail(newUnknownAliasError(entity))
	}
	property = strings.TrimLeft(property, ".")
	if v, ok := s.engine.(FieldValidator); ok {
		if err := v.ValidateField(entity, property); err != nil {
			return "", s.fail(err)
		}
	}
	return alias + "." + property, nil
}

// AllAliases returns the engine's aliases and, when includeLazy is set, the
// aliases of pending lazy joins in registration order.
func (s *Session) AllAliases(includeLazy bool) []string {
	aliases := append([]string(nil), s.engine.AllAliases()...)
	if includeLazy {
		aliases = append(aliases, s.lazyJoins.aliases()...)
	}
	return aliases
}

// AliasForLazyJoin returns the alias of a pending lazy join on entity.
func (s *Session) AliasForLazyJoin(entity string) (string, bool) {
	j, ok := s.lazyJoins.get(entity)
	if !ok {
		return "", false
	}
	return j.Alias, true
}

// LazyJoinEntityForAlias returns the entity of the pending lazy join using alias.
func (s *Session) LazyJoinEntityForAlias(alias string) (string, bool) {
	return s.lazyJoins.entityForAlias(alias)
}

// Join is an alias of InnerJoin.
func (s *Session) Join(target, alias string, opts ...JoinOption) error {
	return s.InnerJoin(target, alias, opts...)
}

// InnerJoin adds an inner join. target is an entity name or an alias.field
// association path.
func (s *Session) InnerJoin(target, alias string, opts ...JoinOption) error {
	return s.join(newJoin(JoinInner, target, alias, opts))
}

// LeftJoin adds a left join.
func (s *Session) LeftJoin(target, alias string, opts ...JoinOption) error {
	return s.join(newJoin(JoinLeft, target, alias, opts))
}

// LazyJoin is an alias of LazyInnerJoin.
func (s *Session) LazyJoin(target, alias string, opts ...JoinOption) error {
	return s.LazyInnerJoin(target, alias, opts...)
}

// LazyInnerJoin records an inner join that is only added once alias is
// referenced by the query.
func (s *Session) LazyInnerJoin(target, alias string, opts ...JoinOption) error {
	return s.lazyJoin(newJoin(JoinInner, target, alias, opts))
}

// LazyLeftJoin records a left join that is only added once alias is
// referenced by the query.
func (s *Session) LazyLeftJoin(target, alias string, opts ...JoinOption) error {
	return s.lazyJoin(newJoin(JoinLeft, target, alias, opts))
}

// addJoin dispatches a recorded join to the eager or lazy path.
func (s *Session) addJoin(j Join, lazy bool) error {
	if lazy {
		return s.lazyJoin(j)
	}
	return s.join(j)
}

func (s *Session) lazyJoin(j Join) error {
	if err := validateJoinKind(j.Kind); err != nil {
		return s.fail(err)
	}
	entity, err := s.resolveTarget(j.Target)
	if err != nil {
		return s.fail(err)
	}
	if s.lazyJoins.has(entity) {
		return s.fail(newDuplicateLazyJoinError(entity))
	}
	s.lazyJoins.add(entity, j)

	capitan.Debug(s.config.ctx, LazyJoinRegistered,
		EntityKey.Field(entity),
		AliasKey.Field(j.Alias),
		JoinKindKey.Field(string(j.Kind)),
	)
	return nil
}

func (s *Session) join(j Join) error {
	if err := validateJoinKind(j.Kind); err != nil {
		return s.fail(err)
	}
	// Text the join adds must not name an alias that is still pending.
	if err := s.performLazyJoinsIn(j.args(), j.Alias); err != nil {
		return err
	}
	entity, err := s.resolveTarget(j.Target)
	if err != nil {
		return s.fail(err)
	}
	if s.joins.has(entity) {
		return s.fail(newDuplicateJoinError(entity))
	}
	if err := s.engine.Join(j); err != nil {
		return s.fail(err)
	}
	s.joins.add(entity, j)

	capitan.Debug(s.config.ctx, JoinPerformed,
		EntityKey.Field(entity),
		AliasKey.Field(j.Alias),
		JoinKindKey.Field(string(j.Kind)),
	)
	return nil
}

func validateJoinKind(kind JoinKind) error {
	switch kind {
	case JoinInner, JoinLeft:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedJoinKind, kind)
	}
}

// resolveTarget maps a join target to an entity. The target is either an
// entity name or alias.field, where alias is any known alias (lazy included)
// and field is an association of the alias's entity.
func (s *Session) resolveTarget(target string) (string, error) {
	md := s.engine.Metadata()
	if md != nil && md.IsEntity(target) {
		return target, nil
	}
	alias, field, ok := strings.Cut(target, ".")
	if !ok || alias == "" || field == "" {
		return "", newUnresolvableTargetError(target)
	}
	owner, ok := s.EntityForAlias(alias)
	if !ok || md == nil {
		return "", newUnresolvableTargetError(target)
	}
	entity, err := md.AssociationTarget(owner, field)
	if err != nil || entity == "" {
		return "", newAssociationTargetError(target, err)
	}
	if !md.IsEntity(entity) {
		return "", newUnresolvableTargetError(target)
	}
	return entity, nil
}
