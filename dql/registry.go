// Package dql provides a reference sqb.Engine that renders DQL-style query
// text, and the entity registry it resolves associations against.
package dql

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/astql"
	"github.com/zoobzio/sentinel"
)

// Tags read from entity structs.
const (
	tagDB          = "db"
	tagType        = "type"
	tagConstraints = "constraints"
	tagDQL         = "dql"
	tagTarget      = "target"
)

var timeType = reflect.TypeOf(time.Time{})

// Entity describes one registered entity type.
type Entity struct {
	Name     string
	Table    string
	Metadata sentinel.Metadata

	// fields maps query field names to their metadata, associations excluded.
	fields map[string]sentinel.FieldMetadata

	// associations maps association names to target entity names.
	associations map[string]string
	collections  map[string]bool

	instance *astql.ASTQL
}

// Fields returns the entity's field names, sorted.
func (e *Entity) Fields() []string {
	out := make([]string, 0, len(e.fields))
	for name := range e.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Associations returns a copy of the association name to target entity map.
func (e *Entity) Associations() map[string]string {
	out := make(map[string]string, len(e.associations))
	for k, v := range e.associations {
		out[k] = v
	}
	return out
}

// Registry holds entity metadata. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register inspects T with sentinel and adds it under its type name.
func Register[T any](r *Registry) error {
	sentinel.Tag(tagDB)
	sentinel.Tag(tagType)
	sentinel.Tag(tagConstraints)
	sentinel.Tag(tagDQL)
	sentinel.Tag(tagTarget)

	return r.Add(sentinel.Inspect[T]())
}

// Define adds an entity without a Go type. Each association maps a field name
// to its target entity; collections are the associations that point at many.
func (r *Registry) Define(name string, fields []string, associations map[string]string, collections ...string) error {
	md := sentinel.Metadata{TypeName: name}
	for _, f := range fields {
		typ := "string"
		tags := map[string]string{tagDB: f}
		if f == "id" {
			typ = "int64"
			tags[tagConstraints] = "primary_key"
		}
		md.Fields = append(md.Fields, sentinel.FieldMetadata{Name: f, Type: typ, Tags: tags})
	}
	many := make(map[string]bool, len(collections))
	for _, c := range collections {
		many[c] = true
	}
	names := make([]string, 0, len(associations))
	for field := range associations {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		typ := "*" + associations[field]
		if many[field] {
			typ = "[]" + associations[field]
		}
		md.Fields = append(md.Fields, sentinel.FieldMetadata{
			Name: field,
			Type: typ,
			Tags: map[string]string{tagDQL: field, tagTarget: associations[field]},
		})
	}
	return r.Add(md)
}

// Add registers an entity from its metadata.
func (r *Registry) Add(md sentinel.Metadata) error {
	if md.TypeName == "" {
		return ErrEmptyEntityName
	}
	e := &Entity{
		Name:         md.TypeName,
		Table:        tableName(md.TypeName),
		Metadata:     md,
		fields:       make(map[string]sentinel.FieldMetadata),
		associations: make(map[string]string),
		collections:  make(map[string]bool),
	}
	for _, f := range md.Fields {
		name := fieldName(f)
		if name == "-" {
			continue
		}
		if target, many := associationTarget(f); target != "" {
			e.associations[name] = target
			e.collections[name] = many
			continue
		}
		e.fields[name] = f
	}

	if len(e.fields) > 0 {
		project, err := buildProject(e.Table, []*Entity{e}, nil)
		if err != nil {
			return fmt.Errorf("dql: failed to build schema for %s: %w", e.Name, err)
		}
		instance, err := astql.NewFromDBML(project)
		if err != nil {
			return fmt.Errorf("dql: failed to create ASTQL instance for %s: %w", e.Name, err)
		}
		e.instance = instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.Name)
	}
	r.entities[e.Name] = e
	r.order = append(r.order, e.Name)
	return nil
}

// Entity returns the registered entity named name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// Names returns entity names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsEntity reports whether name is registered.
func (r *Registry) IsEntity(name string) bool {
	_, ok := r.Entity(name)
	return ok
}

// AssociationTarget returns the entity that entity.field points at. The field
// is matched exactly first, then case-insensitively.
func (r *Registry) AssociationTarget(entity, field string) (string, error) {
	e, ok := r.Entity(entity)
	if !ok {
		return "", newUnknownEntityError(entity)
	}
	if target, ok := e.associations[field]; ok {
		return target, nil
	}
	for name, target := range e.associations {
		if strings.EqualFold(name, field) {
			return target, nil
		}
	}
	return "", newUnknownAssociationError(entity, field)
}

// ValidateField checks that field names a field or an association of entity.
// Nested paths are not validated beyond their first segment.
func (r *Registry) ValidateField(entity, field string) error {
	e, ok := r.Entity(entity)
	if !ok {
		return newUnknownEntityError(entity)
	}
	head, _, _ := strings.Cut(field, ".")
	if _, ok := e.associations[head]; ok {
		return nil
	}
	if e.instance == nil {
		return newUnknownFieldError(entity, head, nil)
	}
	if _, ok := e.fields[head]; !ok {
		return newUnknownFieldError(entity, head, nil)
	}
	if _, err := e.instance.TryF(columnName(e.fields[head], head)); err != nil {
		return newUnknownFieldError(entity, head, err)
	}
	return nil
}

// fieldName returns the name a field is queried by: the dql tag, the db tag,
// or the Go name with its first letter lowered. A db tag of "-" hides the
// field.
func fieldName(f sentinel.FieldMetadata) string {
	if name := f.Tags[tagDQL]; name != "" {
		return name
	}
	if name := f.Tags[tagDB]; name != "" {
		return name
	}
	if f.Name == "" {
		return ""
	}
	return strings.ToLower(f.Name[:1]) + f.Name[1:]
}

// columnName returns the storage column of a field.
func columnName(f sentinel.FieldMetadata, name string) string {
	if col := f.Tags[tagDB]; col != "" && col != "-" {
		return col
	}
	return name
}

// associationTarget returns the target entity of an association field and
// whether it is a collection. The target tag wins over the field's type.
func associationTarget(f sentinel.FieldMetadata) (string, bool) {
	many := strings.HasPrefix(strings.TrimPrefix(f.Type, "*"), "[]")
	if target := f.Tags[tagTarget]; target != "" {
		return target, many
	}
	t := f.ReflectType
	if t == nil {
		return "", false
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
		if t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
			many = true
		}
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return "", false
	}
	return t.Name(), many
}

// tableName converts an entity name to snake case.
func tableName(name string) string {
	var b strings.Builder
	for i, c := range name {
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c + ('a' - 'A'))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
