package plan

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zoobzio/sqb"
)

// ConditionSpec is a condition in a plan. It is either a raw expression,
// written as a plain YAML string, or a structured condition:
//
//	- "organization.name = :name"
//	- {field: person.age, operator: ">=", param: min_age}
//	- {field: person.deleted_at, is_null: true}
//	- {logic: or, group: [...]}
type ConditionSpec struct {
	Expr     string          `yaml:"expr"`
	Field    string          `yaml:"field"`
	Operator string          `yaml:"operator"`
	Param    string          `yaml:"param"`
	IsNull   bool            `yaml:"is_null"`
	Logic    string          `yaml:"logic"`
	Group    []ConditionSpec `yaml:"group"`
}

// UnmarshalYAML accepts a scalar as a raw expression.
func (c *ConditionSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Expr = value.Value
		return nil
	}
	type plain ConditionSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ConditionSpec(p)
	return nil
}

// IsGroup reports whether the condition is an AND/OR group.
func (c ConditionSpec) IsGroup() bool {
	return c.Logic != "" && len(c.Group) > 0
}

// ToCondition converts the declaration to a condition part accepted by a session.
func (c ConditionSpec) ToCondition() (any, error) {
	switch {
	case c.Expr != "":
		return c.Expr, nil
	case c.IsGroup():
		parts, err := ToConditions(c.Group)
		if err != nil {
			return nil, err
		}
		switch c.Logic {
		case "and", "AND":
			return sqb.And(parts...), nil
		case "or", "OR":
			return sqb.Or(parts...), nil
		default:
			return nil, fmt.Errorf("invalid logic %q, expected and or or", c.Logic)
		}
	case c.Field != "" && c.IsNull:
		return sqb.IsNull(c.Field), nil
	case c.Field != "":
		return sqb.Cmp(c.Field, c.Operator, ":"+c.Param)
	default:
		return nil, fmt.Errorf("empty condition")
	}
}

// ToConditions converts a list of declarations.
func ToConditions(specs []ConditionSpec) ([]any, error) {
	out := make([]any, 0, len(specs))
	for i, s := range specs {
		cond, err := s.ToCondition()
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, cond)
	}
	return out, nil
}
