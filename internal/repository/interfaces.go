package repository

import (
	"context"
	"errors"

	"geoindex/internal/domain/entities"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnsupportedField is returned by stores that can only run range
	// queries on the field they were configured to index.
	ErrUnsupportedField = errors.New("range query on unsupported field")
	// ErrInvalidDocument is returned when a document cannot be stored, for
	// example because it has no id.
	ErrInvalidDocument = errors.New("invalid document")
)

// DocumentStore is the document database the search engine runs against.
// Collections are created implicitly on first write.
//
// Go Learning Note — Small Interfaces at the Consumer:
// The services package depends on this interface, never on a concrete
// backend. That keeps the memory, SQL and DynamoDB stores interchangeable and
// lets tests swap in a counting or failing store in a few lines.
type DocumentStore interface {
	// Get returns a copy of the document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*entities.Document, error)
	// Set creates or replaces the whole document.
	Set(ctx context.Context, collection string, doc *entities.Document) error
	// Update merges fields into an existing document, or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// RangeQuery returns documents whose string field lies in [start, end).
	RangeQuery(ctx context.Context, collection, field, start, end string) ([]*entities.Document, error)
	// List returns every document of a collection ordered by id.
	List(ctx context.Context, collection string) ([]*entities.Document, error)
	// Close releases the backend's resources.
	Close() error
}
