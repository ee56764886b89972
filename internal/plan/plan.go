// Package plan decodes declarative query plans and applies them to a session.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan describes entities, a base query and the proposals composed into it.
type Plan struct {
	Entities  []EntitySpec   `yaml:"entities"`
	Query     QuerySpec      `yaml:"query"`
	Proposals []ProposalSpec `yaml:"proposals"`
}

// EntitySpec declares one entity. Associations map a field to its target
// entity; collections lists the associations that point at many.
type EntitySpec struct {
	Name         string            `yaml:"name"`
	Fields       []string          `yaml:"fields"`
	Associations map[string]string `yaml:"associations"`
	Collections  []string          `yaml:"collections"`
}

// QuerySpec is the base query the session wraps.
type QuerySpec struct {
	Select      []string        `yaml:"select"`
	Distinct    bool            `yaml:"distinct"`
	From        FromSpec        `yaml:"from"`
	Joins       []JoinSpec      `yaml:"joins"`
	Where       []ConditionSpec `yaml:"where"`
	OrWhere     []ConditionSpec `yaml:"or_where"`
	GroupBy     []string        `yaml:"group_by"`
	Having      []ConditionSpec `yaml:"having"`
	OrderBy     []OrderBySpec   `yaml:"order_by"`
	Parameters  []ParameterSpec `yaml:"parameters"`
	FirstResult int             `yaml:"first_result"`
	MaxResults  int             `yaml:"max_results"`
}

// FromSpec is the query root.
type FromSpec struct {
	Entity  string `yaml:"entity"`
	Alias   string `yaml:"alias"`
	IndexBy string `yaml:"index_by"`
}

// JoinSpec declares a join. Kind is inner (default) or left.
type JoinSpec struct {
	Kind    string `yaml:"kind"`
	Target  string `yaml:"target"`
	Alias   string `yaml:"alias"`
	With    string `yaml:"with"`
	On      string `yaml:"on"`
	IndexBy string `yaml:"index_by"`
	Lazy    bool   `yaml:"lazy"`
}

// OrderBySpec is one ordering.
//
//	{field: organization.name, direction: desc}
type OrderBySpec struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
}

// ParameterSpec binds a value. On the base query Name is used as given;
// in a proposal Key names the placeholder its conditions use, which is
// rewritten to the generated name.
type ParameterSpec struct {
	Name      string `yaml:"name"`
	Key       string `yaml:"key"`
	Value     any    `yaml:"value"`
	Type      string `yaml:"type"`
	Immutable bool   `yaml:"immutable"`
}

// ProposalSpec declares a proposal. Use is "and" (default) or "or" and
// selects how the proposal joins the session's where clause; nested
// proposals become where entries of their parent.
type ProposalSpec struct {
	Name       string          `yaml:"name"`
	Where      []ConditionSpec `yaml:"where"`
	Joins      []JoinSpec      `yaml:"joins"`
	Parameters []ParameterSpec `yaml:"parameters"`
	Select     []string        `yaml:"select"`
	GroupBy    []string        `yaml:"group_by"`
	OrderBy    []OrderBySpec   `yaml:"order_by"`
	Having     []ConditionSpec `yaml:"having"`
	Nested     []ProposalSpec  `yaml:"nested"`
	Use        string          `yaml:"use"`
}

// Load reads and decodes a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a plan, rejecting unknown fields, and validates it.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

// Errors reported by Validate.
var (
	ErrMissingFrom       = errors.New("query.from.entity and query.from.alias are required")
	ErrMissingEntityName = errors.New("entity name is required")
	ErrMissingJoinAlias  = errors.New("join target and alias are required")
	ErrInvalidJoinKind   = errors.New("join kind must be inner or left")
	ErrInvalidUse        = errors.New("proposal use must be and or or")
)

// Validate checks required fields.
func (p *Plan) Validate() error {
	for i, e := range p.Entities {
		if e.Name == "" {
			return fmt.Errorf("entities[%d]: %w", i, ErrMissingEntityName)
		}
	}
	if p.Query.From.Entity == "" || p.Query.From.Alias == "" {
		return ErrMissingFrom
	}
	if err := validateJoins("query.joins", p.Query.Joins); err != nil {
		return err
	}
	return validateProposals("proposals", p.Proposals)
}

func validateJoins(path string, joins []JoinSpec) error {
	for i, j := range joins {
		if j.Target == "" || j.Alias == "" {
			return fmt.Errorf("%s[%d]: %w", path, i, ErrMissingJoinAlias)
		}
		switch j.Kind {
		case "", "inner", "left":
		default:
			return fmt.Errorf("%s[%d]: %w, got %q", path, i, ErrInvalidJoinKind, j.Kind)
		}
	}
	return nil
}

func validateProposals(path string, proposals []ProposalSpec) error {
	for i, pr := range proposals {
		at := fmt.Sprintf("%s[%d]", path, i)
		switch pr.Use {
		case "", "and", "or":
		default:
			return fmt.Errorf("%s: %w, got %q", at, ErrInvalidUse, pr.Use)
		}
		if err := validateJoins(at+".joins", pr.Joins); err != nil {
			return err
		}
		if err := validateProposals(at+".nested", pr.Nested); err != nil {
			return err
		}
	}
	return nil
}
