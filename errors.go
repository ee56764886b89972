package sqb

import (
	"errors"
	"fmt"
)

// Errors returned by Session and Proposal operations.
var (
	// ErrNilEngine is returned when Wrap is called without an engine.
	ErrNilEngine = errors.New("engine is nil")

	// ErrJoinedQuery is returned when wrapping an engine that already declares joins.
	ErrJoinedQuery = errors.New("query builder has already declared joins")

	// ErrDuplicateJoin is returned when a second join targets an entity that is already joined.
	ErrDuplicateJoin = errors.New("only one join per entity is supported")

	// ErrDuplicateLazyJoin is returned when a second lazy join targets an entity that already has one.
	ErrDuplicateLazyJoin = errors.New("only one lazy join per entity is supported")

	// ErrUnresolvableJoinTarget is returned when a join target names no known entity or association.
	ErrUnresolvableJoinTarget = errors.New("join entity not found")

	// ErrUnknownAlias is returned when composing on an entity that has no alias.
	ErrUnknownAlias = errors.New("cannot find alias")

	// ErrImmutableParameter is returned when rebinding a parameter marked immutable.
	ErrImmutableParameter = errors.New("parameter is already defined and immutable")

	// ErrImmutableParameters is returned when replacing the parameter set while immutable parameters exist.
	ErrImmutableParameters = errors.New("cannot override query parameters because some defined parameters are immutable")

	// ErrInvalidParameterKey is returned when a parameter key is neither a string nor an int.
	ErrInvalidParameterKey = errors.New("parameter key must be string or int")

	// ErrUnsupportedOperation is returned when the engine does not recognize a forwarded operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrUnsupportedJoinKind is returned when a join record carries a kind other than inner or left.
	ErrUnsupportedJoinKind = errors.New("unsupported join kind")

	// ErrLazyJoinCycle is returned when lazy joins reference each other's aliases.
	ErrLazyJoinCycle = errors.New("lazy joins reference each other")

	// ErrUnsupportedExpression is returned when a condition part has no textual form.
	ErrUnsupportedExpression = errors.New("unsupported expression type")

	// ErrInvalidOperator is returned by Cmp for operators outside the supported set.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidDirection is returned for ordering directions other than ASC or DESC.
	ErrInvalidDirection = errors.New("invalid direction")
)

// ImmutableParameterError reports an attempt to rebind an immutable parameter.
type ImmutableParameterError struct {
	Name string
}

func (e *ImmutableParameterError) Error() string {
	return fmt.Sprintf("%q parameter is already defined and immutable", e.Name)
}

// Unwrap allows errors.Is(err, ErrImmutableParameter).
func (e *ImmutableParameterError) Unwrap() error {
	return ErrImmutableParameter
}

func newDuplicateJoinError(entity string) error {
	return fmt.Errorf("%w: %s has already been used", ErrDuplicateJoin, entity)
}

func newDuplicateLazyJoinError(entity string) error {
	return fmt.Errorf("%w: %s has already been used", ErrDuplicateLazyJoin, entity)
}

func newUnresolvableTargetError(target string) error {
	return fmt.Errorf("%w: cannot add join because join entity has not been found for %q", ErrUnresolvableJoinTarget, target)
}

func newAssociationTargetError(target string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: cannot find target entity for %q, try using extended join syntax: %v", ErrUnresolvableJoinTarget, target, err)
	}
	return fmt.Errorf("%w: cannot find target entity for %q, try using extended join syntax", ErrUnresolvableJoinTarget, target)
}

func newUnknownAliasError(entity string) error {
	return fmt.Errorf("%w for %q", ErrUnknownAlias, entity)
}

func newInvalidKeyError(key any) error {
	return fmt.Errorf("%w, %T given", ErrInvalidParameterKey, key)
}

// NewUnsupportedOperationError reports op as not handled. Engines return it
// from Apply for operations they do not support.
func NewUnsupportedOperationError(op Op) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedOperation, op)
}

func newUnsupportedExpressionError(part any) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedExpression, part)
}
