// Package store is the persistence boundary. Every entity kind is kept in a
// Store[T] backed by Postgres, MongoDB or process memory. Stores enforce
// unique indexes and optimistic concurrency on the version field; callers
// never see driver errors, only apperrors kinds.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// Entity is the identity/version contract every stored document satisfies.
type Entity interface {
	GetID() utils.SixID
	SetID(id utils.SixID)
	GenIDIfEmpty()
	GetVersion() int64
	SetVersion(v int64)
}

// EntityPtr constrains a type parameter to *T implementing Entity.
type EntityPtr[T any] interface {
	*T
	Entity
}

// Store is a typed collection of entities.
type Store[T any] interface {
	// Create assigns an ID when missing, sets version 1 and inserts the document.
	// A unique index violation yields a Conflict wrapping ErrDuplicate.
	Create(ctx context.Context, doc *T) error
	Get(ctx context.Context, id utils.SixID) (*T, error)
	// FindOne returns the first match in id order, or NotFound.
	FindOne(ctx context.Context, filters ...Filter) (*T, error)
	List(ctx context.Context, q Query) ([]*T, error)
	Count(ctx context.Context, filters ...Filter) (int64, error)
	// Update merges patch into the document and bumps its version. With
	// expectedVersion > 0 the write only applies while the stored version still
	// matches; otherwise it fails with a Conflict wrapping ErrStaleVersion.
	Update(ctx context.Context, id utils.SixID, expectedVersion int64, patch Patch) (*T, error)
	Delete(ctx context.Context, id utils.SixID) error
}

var (
	// ErrDuplicate marks conflicts caused by a unique index.
	ErrDuplicate = errors.New("duplicate key")
	// ErrStaleVersion marks conflicts caused by a version mismatch.
	ErrStaleVersion = errors.New("stale version")
)

// Op is a comparison operator used in a Filter.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpIn      Op = "in"
)

// Filter restricts a query on one field. Field names are the JSON field names;
// "id" addresses the primary key.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Filter  { return Filter{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v any) Filter  { return Filter{Field: field, Op: OpNe, Value: v} }
func Gt(field string, v any) Filter  { return Filter{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Filter { return Filter{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Filter  { return Filter{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Filter { return Filter{Field: field, Op: OpLte, Value: v} }
func IsNull(field string) Filter     { return Filter{Field: field, Op: OpIsNull} }
func NotNull(field string) Filter    { return Filter{Field: field, Op: OpNotNull} }

// In matches any of values. An empty list matches nothing.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Order sorts a List result. Ties are broken by id.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a List call. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Patch maps JSON field names to new values. It must not touch id or version.
type Patch map[string]any

func (p Patch) validate() error {
	for k := range p {
		if k == "id" || k == "_id" || k == "version" {
			return fmt.Errorf("patch may not set %q", k)
		}
	}
	return nil
}

// FieldType tells backends how to compare a field that is not a plain string.
type FieldType int

const (
	TypeString FieldType = iota
	TypeTime
	TypeBool
	TypeNumber
)

// Index declares a secondary index. Where limits a unique index to documents
// matching every equality filter in it (a partial index).
type Index struct {
	Name   string
	Fields []string
	Unique bool
	Where  []Filter
}

// Schema names a collection and declares its indexes and typed fields.
type Schema struct {
	Name    string
	Indexes []Index
	Types   map[string]FieldType
}

func (s Schema) typeOf(field string) FieldType {
	if field == "version" {
		return TypeNumber
	}
	if t, ok := s.Types[field]; ok {
		return t
	}
	return TypeString
}

func (s Schema) notFound(id utils.SixID) error {
	return apperrors.NotFound(s.Name, id.String())
}

func (s Schema) noMatch() error {
	return apperrors.NotFound(s.Name, "matching query")
}

func (s Schema) duplicate(index string) error {
	return &apperrors.Error{
		Kind:    apperrors.ErrConflict,
		Message: fmt.Sprintf("%s already exists (%s)", s.Name, index),
		Err:     ErrDuplicate,
	}
}

func (s Schema) stale(id utils.SixID) error {
	return &apperrors.Error{
		Kind:    apperrors.ErrConflict,
		Message: fmt.Sprintf("%s %s was modified concurrently", s.Name, id),
		Err:     ErrStaleVersion,
	}
}

// IsDuplicate reports a unique index conflict.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsStale reports an optimistic concurrency conflict.
func IsStale(err error) bool { return errors.Is(err, ErrStaleVersion) }
