package sqb

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestScanAliases(t *testing.T) {
	aliases := map[string]bool{"person": true, "address": true, "employee": true}
	match := func(w string) bool { return aliases[w] }

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"qualified field", "person.name = 1", []string{"person"}},
		{"order of appearance", "address.city = person.city", []string{"address", "person"}},
		{"deduplicated", "person.a = person.b", []string{"person"}},
		{"field after dot", "organization.person = 1", nil},
		{"single quoted literal", "organization.name = 'person'", nil},
		{"escaped quote", "organization.name = 'it''s person' AND address.id = 1", []string{"address"}},
		{"double quoted literal", `organization.name = "employee"`, nil},
		{"named placeholder", "organization.name = :person", nil},
		{"positional placeholder", "organization.id = ?1 AND person.id = 2", []string{"person"}},
		{"prefix of a longer word", "persons.id = 1 AND employee_id = 2", nil},
		{"bare alias", "person IS NULL", []string{"person"}},
		{"inside function", "COUNT(employee.id) > 0", []string{"employee"}},
		{"number followed by letters", "1person = 2", nil},
		{"unterminated literal", "person.id = 'abc", []string{"person"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAliases(tt.text, match)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scanAliases(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestLazyJoinPerformedOnReference(t *testing.T) {
	s, f := newTestSession(t)
	if err := s.LazyLeftJoin("organization.address", "address"); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}
	if err := s.LazyLeftJoin("organization.persons", "person"); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}

	if err := s.AndWhere("organization.name = 'address'"); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}
	if len(f.joins) != 0 {
		t.Fatalf("literal caused joins %v", f.joins)
	}

	if err := s.AndWhere("person.id = :id"); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}
	if len(f.joins) != 1 || f.joins[0].Alias != "person" {
		t.Fatalf("joins = %v, want person", f.joins)
	}
	if _, ok := s.AliasForLazyJoin("Person"); ok {
		t.Error("performed lazy join is still pending")
	}
	if alias, ok := s.AliasForEntity("Person"); !ok || alias != "person" {
		t.Errorf("AliasForEntity(Person) = %q, %v", alias, ok)
	}
}

func TestLazyJoinNotPerformedByNonReferencingOps(t *testing.T) {
	s, f := newTestSession(t)
	if err := s.LazyLeftJoin("organization.address", "address"); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}
	if err := s.SetMaxResults(10); err != nil {
		t.Fatalf("SetMaxResults() error = %v", err)
	}
	if err := s.Distinct(true); err != nil {
		t.Fatalf("Distinct() error = %v", err)
	}
	if len(f.joins) != 0 {
		t.Errorf("joins = %v, want none", f.joins)
	}
}

func TestLazyJoinDependencies(t *testing.T) {
	s, f := newTestSession(t)
	steps := []struct {
		target string
		alias  string
	}{
		{"organization.persons", "person"},
		{"person.employee", "employee"},
		{"employee.papers", "paper"},
		{"paper.document", "document"},
	}
	for _, st := range steps {
		if err := s.LazyInnerJoin(st.target, st.alias); err != nil {
			t.Fatalf("LazyInnerJoin(%q) error = %v", st.target, err)
		}
	}

	if err := s.AndWhere("document IS NULL"); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}

	got := make([]string, len(f.joins))
	for i, j := range f.joins {
		got[i] = j.Alias
	}
	if want := []string{"person", "employee", "paper", "document"}; !reflect.DeepEqual(got, want) {
		t.Errorf("join order = %v, want %v", got, want)
	}
	if len(s.AllAliases(true)) != 5 {
		t.Errorf("AllAliases(true) = %v", s.AllAliases(true))
	}
}

func TestLazyJoinConditionDependencies(t *testing.T) {
	s, f := newTestSession(t)
	if err := s.LazyLeftJoin("organization.persons", "person"); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}
	if err := s.LazyLeftJoin("Employee", "employee", With("person = employee")); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}

	if err := s.AndWhere("employee.id IS NOT NULL"); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}
	want := "SELECT organization FROM Organization organization " +
		"LEFT JOIN organization.persons person " +
		"LEFT JOIN Employee employee WITH person = employee " +
		"WHERE employee.id IS NOT NULL"
	if got := f.DQL(); got != want {
		t.Errorf("DQL() = %q, want %q", got, want)
	}
}

func TestLazyJoinCycle(t *testing.T) {
	s, f := newTestSession(t)
	if err := s.LazyLeftJoin("organization.persons", "person", With("person.id = employee.id")); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}
	if err := s.LazyLeftJoin("Employee", "employee", With("employee.id = person.id")); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}

	err := s.AndWhere("person.id = 1")
	if !errors.Is(err, ErrLazyJoinCycle) {
		t.Fatalf("AndWhere() error = %v, want ErrLazyJoinCycle", err)
	}
	if !strings.Contains(err.Error(), "person -> employee -> person") {
		t.Errorf("error %q does not name the cycle", err)
	}
	if len(f.joins) != 0 {
		t.Errorf("joins = %v, want none", f.joins)
	}
	if len(s.resolving) != 0 {
		t.Errorf("resolving stack not unwound: %v", s.resolving)
	}
}
