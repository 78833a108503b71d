package guard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// Existence is the answer of EnsureUnique.
type Existence struct {
	AlreadyExists bool
	ExistingID    utils.SixID
}

// LookupFunc finds the entity holding key, if any.
type LookupFunc func(ctx context.Context, key map[string]any) (utils.SixID, bool, error)

// IUniquenessGuard checks natural keys before writes.
type IUniquenessGuard interface {
	EnsureUnique(ctx context.Context, kind string, key map[string]any) (Existence, error)
}

// Guard dispatches uniqueness checks to the lookup registered per resource kind.
// The check is advisory: the store's unique index remains the final arbiter.
type Guard struct {
	mu      sync.RWMutex
	lookups map[string]LookupFunc
}

// New returns a Guard with no registered kinds.
func New() *Guard {
	return &Guard{lookups: make(map[string]LookupFunc)}
}

// Register installs the lookup for kind, replacing any previous one.
func (g *Guard) Register(kind string, fn LookupFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups[kind] = fn
}

func (g *Guard) EnsureUnique(ctx context.Context, kind string, key map[string]any) (Existence, error) {
	g.mu.RLock()
	fn, ok := g.lookups[kind]
	g.mu.RUnlock()
	if !ok {
		return Existence{}, fmt.Errorf("no uniqueness lookup registered for %q", kind)
	}
	if len(key) == 0 {
		return Existence{}, apperrors.Validation("%s key is empty", kind)
	}

	id, found, err := fn(ctx, key)
	if err != nil {
		return Existence{}, fmt.Errorf("failed to check %s uniqueness: %w", kind, err)
	}
	return Existence{AlreadyExists: found, ExistingID: id}, nil
}

// LookupIn builds a LookupFunc that matches key fields by equality in s,
// together with any extra filters (for example is_active = true).
func LookupIn[T any, PT store.EntityPtr[T]](s store.Store[T], extra ...store.Filter) LookupFunc {
	return func(ctx context.Context, key map[string]any) (utils.SixID, bool, error) {
		fields := make([]string, 0, len(key))
		for f := range key {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		filters := make([]store.Filter, 0, len(key)+len(extra))
		for _, f := range fields {
			filters = append(filters, store.Eq(f, key[f]))
		}
		filters = append(filters, extra...)

		found, err := s.FindOne(ctx, filters...)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return utils.SixID{}, false, nil
		}
		if err != nil {
			return utils.SixID{}, false, err
		}
		return PT(found).GetID(), true, nil
	}
}

// CreateOnce creates doc unless an entity with key already exists. A unique
// index conflict raised by a concurrent writer resolves to that writer's row.
func CreateOnce[T any, PT store.EntityPtr[T]](ctx context.Context, g IUniquenessGuard, kind string, key map[string]any, s store.Store[T], doc *T) (Existence, error) {
	existing, err := g.EnsureUnique(ctx, kind, key)
	if err != nil || existing.AlreadyExists {
		return existing, err
	}

	err = s.Create(ctx, doc)
	if err == nil {
		return Existence{ExistingID: PT(doc).GetID()}, nil
	}
	if !store.IsDuplicate(err) {
		return Existence{}, err
	}

	existing, lookupErr := g.EnsureUnique(ctx, kind, key)
	if lookupErr != nil {
		return Existence{}, lookupErr
	}
	if !existing.AlreadyExists {
		return Existence{}, err
	}
	return existing, nil
}
