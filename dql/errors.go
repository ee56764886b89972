package dql

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity is returned for entity names the registry does not hold.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownAssociation is returned when an entity has no association with the given name.
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrUnknownField is returned when an entity has no field with the given name.
	ErrUnknownField = errors.New("unknown field")

	// ErrDuplicateEntity is returned when registering an entity name twice.
	ErrDuplicateEntity = errors.New("entity already registered")

	// ErrEmptyEntityName is returned for metadata without a type name.
	ErrEmptyEntityName = errors.New("entity name cannot be empty")

	// ErrUnknownPart is returned when resetting a query part that does not exist.
	ErrUnknownPart = errors.New("unknown query part")
)

func newUnknownEntityError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}

func newUnknownAssociationError(entity, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, entity, field)
}

func newUnknownFieldError(entity, field string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrUnknownField, entity, field, err)
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownField, entity, field)
}
