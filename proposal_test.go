package sqb

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestNewProposalName(t *testing.T) {
	s, _ := newTestSession(t)

	if got := s.NewProposal("active").Name(); got != "active" {
		t.Errorf("Name() = %q, want active", got)
	}

	a := NewProposal(s, "").Name()
	b := NewProposal(s, "").Name()
	if !regexp.MustCompile(`^proposal_[0-9a-f]{32}$`).MatchString(a) {
		t.Errorf("generated name %q has unexpected form", a)
	}
	if a == b {
		t.Error("generated names are not unique")
	}
}

func TestProposalIntrospection(t *testing.T) {
	s, _ := newTestSession(t)
	p := s.NewProposal("p")

	if !p.IsEmpty() || p.HasConditions() || p.HasJoins() || p.HasParameters() {
		t.Fatal("new proposal is not empty")
	}
	if p.Session() != s {
		t.Error("Session() does not return the owning session")
	}

	p.AndWhere("a = 1").LeftJoin("organization.address", "address")
	if _, err := p.WithUniqueImmutableParameter("x", 1); err != nil {
		t.Fatalf("WithUniqueImmutableParameter() error = %v", err)
	}
	if p.IsEmpty() || !p.HasConditions() || !p.HasJoins() || !p.HasParameters() {
		t.Error("populated proposal reports missing parts")
	}

	p.ClearAll()
	if !p.IsEmpty() {
		t.Error("ClearAll() left parts behind")
	}

	p.AddSelect("a").GroupBy("a").OrderBy("a", "").Having("COUNT(a) > 1")
	if p.IsEmpty() {
		t.Error("projections are not counted")
	}
	p.ClearSelect().ClearGroupBy().ClearOrderBy().ClearHaving()
	if !p.IsEmpty() {
		t.Error("Clear* left projections behind")
	}
}

func TestProposalPassthroughs(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.LazyLeftJoin("organization.persons", "person"); err != nil {
		t.Fatalf("LazyLeftJoin() error = %v", err)
	}
	if err := s.SetImmutableParameter("status", 1); err != nil {
		t.Fatalf("SetImmutableParameter() error = %v", err)
	}
	p := s.NewProposal("p")

	if !p.HasEntity("Person") {
		t.Error("HasEntity(Person) = false")
	}
	if alias, _ := p.AliasForEntity("Person"); alias != "person" {
		t.Errorf("AliasForEntity(Person) = %q", alias)
	}
	if entity, _ := p.EntityForAlias("organization"); entity != "Organization" {
		t.Errorf("EntityForAlias(organization) = %q", entity)
	}
	if field, err := p.WithAlias("Person", "name"); err != nil || field != "person.name" {
		t.Errorf("WithAlias() = %q, %v", field, err)
	}
	if len(p.AllAliases(true)) != 2 {
		t.Errorf("AllAliases(true) = %v", p.AllAliases(true))
	}
	if prm, err := p.Parameter("status"); err != nil || prm == nil {
		t.Errorf("Parameter(status) = %v, %v", prm, err)
	}
	if len(p.Parameters()) != 1 || len(p.ImmutableParameters()) != 1 {
		t.Error("parameter passthroughs do not reflect the session")
	}
}

func TestProposalParameterNames(t *testing.T) {
	s, _ := newTestSession(t)
	p := s.NewProposal("by city!")

	ph, err := p.WithUniqueImmutableParameter("city", "Berlin")
	if err != nil {
		t.Fatalf("WithUniqueImmutableParameter() error = %v", err)
	}
	if !regexp.MustCompile(`^:proposal_by_city__0_\d+$`).MatchString(ph) {
		t.Errorf("placeholder = %q", ph)
	}
	if _, err := p.WithUniqueImmutableParameter(2.5, 1); !errors.Is(err, ErrInvalidParameterKey) {
		t.Errorf("invalid key error = %v, want ErrInvalidParameterKey", err)
	}

	// Nothing reaches the session before expansion.
	if len(s.Parameters()) != 0 {
		t.Errorf("session parameters = %v, want none", s.Parameters())
	}
}

func TestExpandInto(t *testing.T) {
	s, f := newTestSession(t)
	p := s.NewProposal("city")
	ph, _ := p.WithUniqueImmutableParameter("city", "Berlin", "string")
	p.LazyLeftJoin("organization.address", "address").
		AndWhere("address.city = "+ph, Or("address.zip = '1'", "address.zip = '2'"))

	cond, err := p.ExpandInto(s)
	if err != nil {
		t.Fatalf("ExpandInto() error = %v", err)
	}

	want := regexp.MustCompile(`^\(address\.city = :param_proposal_city_0_\d+_1 AND \(address\.zip = '1' OR address\.zip = '2'\)\)$`)
	if !want.MatchString(cond) {
		t.Errorf("condition = %q", cond)
	}
	if !p.IsConsumed() {
		t.Error("proposal is not consumed")
	}

	im := s.ImmutableParameters()
	if len(im) != 1 || im[0].Value != "Berlin" || im[0].Type != "string" {
		t.Fatalf("immutable parameters = %v", im)
	}
	if !strings.Contains(cond, ":"+im[0].Name) {
		t.Errorf("condition %q does not use %s", cond, im[0].Name)
	}

	// The join is lazy and the condition has not been used yet.
	if len(f.joins) != 0 {
		t.Errorf("joins = %v, want none", f.joins)
	}
	if _, ok := s.AliasForLazyJoin("Address"); !ok {
		t.Error("lazy join was not registered")
	}
}

func TestExpandIntoOnce(t *testing.T) {
	s, _ := newTestSession(t)
	p := s.NewProposal("once")
	ph, _ := p.WithUniqueImmutableParameter("id", 1)
	p.AndWhere("organization.id = " + ph)

	if err := s.AndWhere(p); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}
	if err := s.AndWhere(p); err != nil {
		t.Fatalf("second AndWhere() error = %v", err)
	}

	cond, err := p.ExpandInto(s)
	if err != nil || cond != "1=1" {
		t.Errorf("ExpandInto() after consumption = %q, %v, want 1=1", cond, err)
	}
	if len(s.Parameters()) != 1 {
		t.Errorf("parameters = %v, want one", s.Parameters())
	}
}

func TestExpandEmptyProposal(t *testing.T) {
	s, _ := newTestSession(t, WithTautology("TRUE"))
	cond, err := s.NewProposal("empty").AndWhere("", nil).ExpandInto(s)
	if err != nil || cond != "TRUE" {
		t.Errorf("ExpandInto() = %q, %v, want TRUE", cond, err)
	}
}

func TestExpandSinglePart(t *testing.T) {
	s, _ := newTestSession(t)
	cond, err := s.NewProposal("single").AndWhere("organization.id = 1").ExpandInto(s)
	if err != nil || cond != "organization.id = 1" {
		t.Errorf("ExpandInto() = %q, %v", cond, err)
	}
}

func TestExpandNestedProposals(t *testing.T) {
	s, _ := newTestSession(t)
	inner := s.NewProposal("inner").AndWhere("organization.id > 1", "organization.id < 9")
	outer := s.NewProposal("outer").OrWhere("organization.name IS NOT NULL").AndWhere(inner)

	cond, err := outer.ExpandInto(s)
	if err != nil {
		t.Fatalf("ExpandInto() error = %v", err)
	}
	want := "(organization.name IS NOT NULL AND ((organization.id > 1 AND organization.id < 9)))"
	if cond != want {
		t.Errorf("condition = %q, want %q", cond, want)
	}
	if !inner.IsConsumed() {
		t.Error("nested proposal is not consumed")
	}
}

func TestExpandProjections(t *testing.T) {
	s, f := newTestSession(t)
	p := s.NewProposal("stats")
	ph, _ := p.WithUniqueImmutableParameter("min", 2)
	p.LeftJoin("organization.persons", "person").
		AddSelect("COUNT(person.id) AS persons").
		GroupBy("organization.id").
		OrderBy("persons", "desc").
		Having("COUNT(person.id) >= " + ph)

	if err := s.AndWhere(p); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}

	want := regexp.MustCompile(`^SELECT organization, COUNT\(person\.id\) AS persons FROM Organization organization ` +
		`LEFT JOIN organization\.persons person WHERE 1=1 ` +
		`HAVING COUNT\(person\.id\) >= :param_proposal_stats_0_\d+_1 ORDER BY persons DESC$`)
	if got := f.DQL(); !want.MatchString(got) {
		t.Errorf("DQL() = %q", got)
	}
}

func TestExpandRenamesJoinConditions(t *testing.T) {
	s, f := newTestSession(t)
	p := s.NewProposal("j")
	city, _ := p.WithUniqueImmutableParameter("city", "Berlin")
	name, _ := p.WithUniqueImmutableParameter("name", "Ann")
	p.LeftJoin("organization.address", "address", With("address.city = "+city)).
		LazyLeftJoin("organization.persons", "person", On("person.name = "+name)).
		AndWhere("address.id > 0", "person.id > 0")

	if err := s.AndWhere(p); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}

	got := f.DQL()
	want := regexp.MustCompile(`LEFT JOIN organization\.address address WITH address\.city = :param_proposal_j_0_\d+_1 ` +
		`LEFT JOIN organization\.persons person ON person\.name = :param_proposal_j_1_\d+_2 WHERE`)
	if !want.MatchString(got) {
		t.Errorf("DQL() = %q", got)
	}
	if strings.Contains(got, ":proposal_") {
		t.Errorf("DQL() = %q still holds a local placeholder", got)
	}
	for _, prm := range s.Parameters() {
		if !strings.Contains(got, ":"+prm.Name) {
			t.Errorf("bound parameter %s is not used in %q", prm.Name, got)
		}
	}
}

func TestExpandRenamesHavingComposites(t *testing.T) {
	s, f := newTestSession(t)
	p := s.NewProposal("h")
	ph, _ := p.WithUniqueImmutableParameter("min", 2)
	p.Having(Or("COUNT(organization.id) > "+ph, And("COUNT(organization.id) = 0", "organization.id = "+ph)))

	if err := s.AndWhere(p); err != nil {
		t.Fatalf("AndWhere() error = %v", err)
	}

	got := f.DQL()
	want := regexp.MustCompile(`HAVING COUNT\(organization\.id\) > :param_proposal_h_0_\d+_1 OR ` +
		`\(COUNT\(organization\.id\) = 0 AND organization\.id = :param_proposal_h_0_\d+_1\)$`)
	if !want.MatchString(got) {
		t.Errorf("DQL() = %q", got)
	}
	if strings.Contains(got, ":proposal_") {
		t.Errorf("DQL() = %q still holds a local placeholder", got)
	}
}

func TestExpandGroupsDisjunctions(t *testing.T) {
	tests := []struct {
		name  string
		where []any
		want  string
	}{
		{
			name:  "string with OR",
			where: []any{"u.status = 1 OR u.status = 2", "u.role = 'admin'"},
			want:  "((u.status = 1 OR u.status = 2) AND u.role = 'admin')",
		},
		{
			name:  "lower case operator",
			where: []any{"u.role = 'admin'", "u.status = 1 or u.status IS NULL"},
			want:  "(u.role = 'admin' AND (u.status = 1 or u.status IS NULL))",
		},
		{
			name:  "single part composite",
			where: []any{And("a = 1 OR b = 2"), "c = 3"},
			want:  "((a = 1 OR b = 2) AND c = 3)",
		},
		{
			name:  "composite grouped once",
			where: []any{Or("a = 1", "b = 2"), "c = 3"},
			want:  "((a = 1 OR b = 2) AND c = 3)",
		},
		{
			name:  "single entry left as is",
			where: []any{"a = 1 OR b = 2"},
			want:  "a = 1 OR b = 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t)
			got, err := s.NewProposal("g").AndWhere(tt.where...).ExpandInto(s)
			if err != nil {
				t.Fatalf("ExpandInto() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandInto() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandUnsupportedPart(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.NewProposal("bad").AndWhere(42).ExpandInto(s)
	if !errors.Is(err, ErrUnsupportedExpression) {
		t.Errorf("ExpandInto() error = %v, want ErrUnsupportedExpression", err)
	}
}

func TestProposalClone(t *testing.T) {
	s, _ := newTestSession(t)
	inner := s.NewProposal("inner").AndWhere("a = 1")
	p := s.NewProposal("p").AndWhere(Or(inner, "b = 2"))

	if _, err := p.ExpandInto(s); err != nil {
		t.Fatalf("ExpandInto() error = %v", err)
	}
	c := p.Clone()
	if c.IsConsumed() {
		t.Error("clone is consumed")
	}

	cond, err := c.ExpandInto(s)
	if err != nil {
		t.Fatalf("clone ExpandInto() error = %v", err)
	}
	// The nested proposal was cloned too, so it expands again.
	if cond != "(a = 1 OR b = 2)" {
		t.Errorf("clone condition = %q", cond)
	}

	c.AndWhere("c = 3")
	if len(p.where) != 1 {
		t.Error("clone shares conditions with the original")
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct{ in, want string }{
		{"active", "active"},
		{"by-city", "by_city"},
		{"a b.c", "a_b_c"},
		{"ünï", "__n__"},
	}
	for _, tt := range tests {
		if got := identifier(tt.in); got != tt.want {
			t.Errorf("identifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
