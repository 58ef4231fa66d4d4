package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/knc/pkg/models"
)

var (
	// ErrNotFound is returned by registry operations that require an existing record.
	ErrNotFound = errors.New("configuration not found")

	// ErrPersistence wraps any failure writing the snapshot to durable storage.
	ErrPersistence = errors.New("persisting configuration snapshot")

	// ErrImmutableVariant is returned when an update tries to change a record's variant.
	ErrImmutableVariant = errors.New("config variant cannot be changed")

	// ErrDuplicateID is returned when create is given an id that is already taken.
	ErrDuplicateID = errors.New("config id already exists")

	// ErrNotBrowsable is returned when instances are requested for a config
	// that is not an ontology object.
	ErrNotBrowsable = errors.New("config has no object instances to browse")

	// ErrNoKnowledgeNetwork is returned when an operation needs the operator's
	// default knowledge network id and settings do not have one.
	ErrNoKnowledgeNetwork = errors.New("no default knowledge network id in settings")

	// ErrPlatform wraps failures reported by the knowledge network platform.
	ErrPlatform = errors.New("platform request failed")
)

// ParseError reports an import document that is malformed or fails the
// document-shape check. Index is the offending record, or -1 for
// document-level problems.
type ParseError struct {
	Reason string
	Index  int
	Fields []models.FieldError
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parsing import document: ")
	if e.Index >= 0 {
		fmt.Fprintf(&b, "record %d: ", e.Index)
	}
	b.WriteString(e.Reason)
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Field + ": " + f.Message
		}
		b.WriteString(" (" + strings.Join(parts, "; ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError carries field-level problems when a surface decides to
// treat them as a failed operation.
type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "config validation failed:\n  - " + strings.Join(parts, "\n  - ")
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
