package sqb

import (
	"fmt"
	"strings"
	"testing"
)

// fakeEngine is a minimal Engine that renders a flat query text and answers
// metadata questions from a fixed association table.
type fakeEngine struct {
	rootAliases  []string
	rootEntities []string
	selects      []string
	joins        []Join
	where        []string
	having       []string
	orderBy      []string
	params       []*Parameter
	applied      []Op
	assoc        map[string]map[string]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rootAliases:  []string{"organization"},
		rootEntities: []string{"Organization"},
		selects:      []string{"organization"},
		assoc: map[string]map[string]string{
			"Organization": {"address": "Address", "persons": "Person"},
			"Address":      {},
			"Person":       {"employee": "Employee", "organization": "Organization"},
			"Employee":     {"papers": "Paper"},
			"Paper":        {"document": "Document"},
			"Document":     {},
		},
	}
}

func (f *fakeEngine) RootAliases() []string  { return append([]string(nil), f.rootAliases...) }
func (f *fakeEngine) RootEntities() []string { return append([]string(nil), f.rootEntities...) }

func (f *fakeEngine) AllAliases() []string {
	out := f.RootAliases()
	for _, j := range f.joins {
		out = append(out, j.Alias)
	}
	return out
}

func (f *fakeEngine) HasJoins() bool { return len(f.joins) > 0 }

func (f *fakeEngine) Join(j Join) error {
	f.joins = append(f.joins, j)
	return nil
}

func (f *fakeEngine) Apply(op Op) (any, error) {
	f.applied = append(f.applied, op)
	switch o := op.(type) {
	case SelectOp:
		f.selects = o.Parts
	case AddSelectOp:
		f.selects = append(f.selects, o.Parts...)
	case FromOp:
		f.rootAliases = append(f.rootAliases, o.Alias)
		f.rootEntities = append(f.rootEntities, o.Entity)
	case WhereOp:
		f.where = nil
		return f, f.addConditions(&f.where, o.Parts)
	case AndWhereOp:
		return f, f.addConditions(&f.where, o.Parts)
	case OrWhereOp:
		return f, f.addConditions(&f.where, o.Parts)
	case AndHavingOp:
		return f, f.addConditions(&f.having, o.Parts)
	case AddOrderByOp:
		f.orderBy = append(f.orderBy, strings.TrimSpace(o.Sort+" "+o.Order))
	case AddGroupByOp, DistinctOp, FirstResultOp, MaxResultsOp:
	default:
		return nil, NewUnsupportedOperationError(op)
	}
	return f, nil
}

func (f *fakeEngine) addConditions(dst *[]string, parts []any) error {
	for _, p := range parts {
		text, err := Render(p)
		if err != nil {
			return err
		}
		*dst = append(*dst, text)
	}
	return nil
}

func (f *fakeEngine) SetParameter(name string, value any, typ ParamType) {
	if p := f.Parameter(name); p != nil {
		p.Value = value
		p.Type = typ
		return
	}
	f.params = append(f.params, &Parameter{Name: name, Value: value, Type: typ})
}

func (f *fakeEngine) Parameter(name string) *Parameter {
	for _, p := range f.params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (f *fakeEngine) Parameters() []*Parameter { return append([]*Parameter(nil), f.params...) }

func (f *fakeEngine) SetParameters(params []*Parameter) {
	f.params = append([]*Parameter(nil), params...)
}

func (f *fakeEngine) DQL() string {
	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(f.selects, ", ") + " FROM")
	for i, a := range f.rootAliases {
		fmt.Fprintf(&b, " %s %s", f.rootEntities[i], a)
	}
	for _, j := range f.joins {
		b.WriteString(" " + j.String())
	}
	if len(f.where) > 0 {
		b.WriteString(" WHERE " + strings.Join(f.where, " AND "))
	}
	if len(f.having) > 0 {
		b.WriteString(" HAVING " + strings.Join(f.having, " AND "))
	}
	if len(f.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(f.orderBy, ", "))
	}
	return b.String()
}

func (f *fakeEngine) Metadata() Metadata { return f }

func (f *fakeEngine) IsEntity(name string) bool {
	_, ok := f.assoc[name]
	return ok
}

func (f *fakeEngine) AssociationTarget(entity, field string) (string, error) {
	target, ok := f.assoc[entity][field]
	if !ok {
		return "", fmt.Errorf("no association %s.%s", entity, field)
	}
	return target, nil
}

func (f *fakeEngine) Clone() Engine {
	c := *f
	c.rootAliases = append([]string(nil), f.rootAliases...)
	c.rootEntities = append([]string(nil), f.rootEntities...)
	c.selects = append([]string(nil), f.selects...)
	c.joins = append([]Join(nil), f.joins...)
	c.where = append([]string(nil), f.where...)
	c.having = append([]string(nil), f.having...)
	c.orderBy = append([]string(nil), f.orderBy...)
	c.applied = nil
	c.params = nil
	for _, p := range f.params {
		cp := *p
		c.params = append(c.params, &cp)
	}
	return &c
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeEngine) {
	t.Helper()
	f := newFakeEngine()
	s, err := Wrap(f, opts...)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	return s, f
}
