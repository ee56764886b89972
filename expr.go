package sqb

import (
	"fmt"
	"regexp"
	"strings"
)

// CompositeKind is the logical operator joining the parts of a Composite.
type CompositeKind string

// Composite kinds.
const (
	KindAnd CompositeKind = "AND"
	KindOr  CompositeKind = "OR"
)

// Composite is an AND or OR group of condition parts.
//
// Parts may be string, fmt.Stringer, *Composite or *Proposal. Proposals are
// expanded when the composite is used in a condition position of a Session.
type Composite struct {
	Kind  CompositeKind
	Parts []any
}

// And groups parts with AND.
func And(parts ...any) *Composite {
	c := &Composite{Kind: KindAnd}
	return c.Add(parts...)
}

// Or groups parts with OR.
func Or(parts ...any) *Composite {
	c := &Composite{Kind: KindOr}
	return c.Add(parts...)
}

// Add appends parts, skipping nil values, empty strings and empty composites.
func (c *Composite) Add(parts ...any) *Composite {
	for _, p := range parts {
		switch v := p.(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
		case *Composite:
			if v == nil || v.Count() == 0 {
				continue
			}
		case *Proposal:
			if v == nil {
				continue
			}
		}
		c.Parts = append(c.Parts, p)
	}
	return c
}

// Count returns the number of parts.
func (c *Composite) Count() int {
	return len(c.Parts)
}

// Clone copies the composite, cloning nested composites and proposals.
func (c *Composite) Clone() *Composite {
	out := &Composite{Kind: c.Kind, Parts: make([]any, len(c.Parts))}
	for i, p := range c.Parts {
		out.Parts[i] = cloneCondition(p)
	}
	return out
}

var logicalOperator = regexp.MustCompile(`(?i)\s(OR|AND)\s`)

// Render returns the textual form of the composite. A single part is rendered
// as is; several parts are joined by the composite's operator, and parts that
// themselves contain AND or OR are parenthesized.
func (c *Composite) Render() (string, error) {
	if len(c.Parts) == 1 {
		return Render(c.Parts[0])
	}
	rendered := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		text, err := Render(p)
		if err != nil {
			return "", err
		}
		if nested, ok := p.(*Composite); ok && nested.Count() > 1 {
			text = "(" + text + ")"
		} else if logicalOperator.MatchString(text) {
			text = "(" + text + ")"
		}
		rendered = append(rendered, text)
	}
	return strings.Join(rendered, " "+string(c.Kind)+" "), nil
}

// Render returns the text of a resolved condition part. Proposals cannot be
// rendered without a Session and yield ErrUnsupportedExpression.
func Render(part any) (string, error) {
	switch v := part.(type) {
	case string:
		return v, nil
	case *Composite:
		return v.Render()
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", newUnsupportedExpressionError(part)
	}
}

func cloneCondition(part any) any {
	switch v := part.(type) {
	case *Proposal:
		return v.Clone()
	case *Composite:
		return v.Clone()
	default:
		return part
	}
}

// operators lists the comparison operators accepted by Cmp.
var operators = map[string]string{
	"=":        "=",
	"<>":       "<>",
	"!=":       "<>",
	">":        ">",
	">=":       ">=",
	"<":        "<",
	"<=":       "<=",
	"LIKE":     "LIKE",
	"NOT LIKE": "NOT LIKE",
	"IN":       "IN",
	"NOT IN":   "NOT IN",
}

// validateOperator normalizes op against the supported operator table.
func validateOperator(op string) (string, error) {
	normalized, ok := operators[strings.ToUpper(strings.TrimSpace(op))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidOperator, op)
	}
	return normalized, nil
}

// validateDirection normalizes an ordering direction. An empty direction is
// left to the engine's default.
func validateDirection(dir string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "":
		return "", nil
	case "asc":
		return "ASC", nil
	case "desc":
		return "DESC", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidDirection, dir)
	}
}

// Cmp builds "x op y" after validating op.
func Cmp(x, op, y string) (string, error) {
	normalized, err := validateOperator(op)
	if err != nil {
		return "", err
	}
	if normalized == "IN" || normalized == "NOT IN" {
		return x + " " + normalized + "(" + y + ")", nil
	}
	return x + " " + normalized + " " + y, nil
}

// Eq builds "x = y".
func Eq(x, y string) string { return x + " = " + y }

// Neq builds "x <> y".
func Neq(x, y string) string { return x + " <> " + y }

// Lt builds "x < y".
func Lt(x, y string) string { return x + " < " + y }

// Lte builds "x <= y".
func Lte(x, y string) string { return x + " <= " + y }

// Gt builds "x > y".
func Gt(x, y string) string { return x + " > " + y }

// Gte builds "x >= y".
func Gte(x, y string) string { return x + " >= " + y }

// Like builds "x LIKE y".
func Like(x, y string) string { return x + " LIKE " + y }

// NotLike builds "x NOT LIKE y".
func NotLike(x, y string) string { return x + " NOT LIKE " + y }

// In builds "x IN(y1, y2)".
func In(x string, y ...string) string { return x + " IN(" + strings.Join(y, ", ") + ")" }

// NotIn builds "x NOT IN(y1, y2)".
func NotIn(x string, y ...string) string { return x + " NOT IN(" + strings.Join(y, ", ") + ")" }

// IsNull builds "x IS NULL".
func IsNull(x string) string { return x + " IS NULL" }

// IsNotNull builds "x IS NOT NULL".
func IsNotNull(x string) string { return x + " IS NOT NULL" }

// Not builds "NOT(x)".
func Not(x string) string { return "NOT(" + x + ")" }

// Between builds "x BETWEEN a AND b".
func Between(x, a, b string) string { return x + " BETWEEN " + a + " AND " + b }
