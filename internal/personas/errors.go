package personas

import "fmt"

// DuplicateIDError is returned when creating a persona whose id is taken.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("character '%s' already exists", e.ID)
}

// InvalidParameterError is returned when a persona field is out of range.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProtectedPersonaError is returned when deleting a built-in persona.
type ProtectedPersonaError struct {
	ID string
}

func (e *ProtectedPersonaError) Error() string {
	return fmt.Sprintf("cannot delete default character '%s'", e.ID)
}

// NotFoundError is returned for an unknown persona id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("character '%s' not found", e.ID)
}
