package schema

import "errors"

var (
	// ErrUnknownType is returned when a type name is not registered.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrUnknownRelation is returned when a relation operation references a
	// relation name that was never registered on the entity type.
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrUnknownFormatter is returned when a named formatter is not registered.
	ErrUnknownFormatter = errors.New("unknown formatter")
)
