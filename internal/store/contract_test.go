package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

type widget struct {
	models.Base `bson:",inline"`
	Name        string     `bson:"name" json:"name"`
	Email       string     `bson:"email" json:"email"`
	Active      bool       `bson:"active" json:"active"`
	Score       int64      `bson:"score" json:"score"`
	At          time.Time  `bson:"at" json:"at"`
	RemovedAt   *time.Time `bson:"removed_at" json:"removed_at"`
}

var widgetSchema = Schema{
	Name: "widgets_test",
	Indexes: []Index{
		{Name: "uniq_active_email", Fields: []string{"email"}, Unique: true, Where: []Filter{Eq("active", true)}},
		{Name: "idx_name", Fields: []string{"name"}},
	},
	Types: map[string]FieldType{"active": TypeBool, "score": TypeNumber, "at": TypeTime, "removed_at": TypeTime},
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newWidget(name, email string, active bool, score int64, offset time.Duration) *widget {
	return &widget{Name: name, Email: email, Active: active, Score: score, At: models.Timestamp(baseTime.Add(offset))}
}

// runContract exercises the behaviour every backend must share. newStore must
// return an empty store.
func runContract(t *testing.T, newStore func(t *testing.T) Store[widget]) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		w := newWidget("alpha", "a@example.com", true, 3, 0)
		require.NoError(t, s.Create(ctx, w))
		assert.False(t, w.ID.IsZero())
		assert.Equal(t, int64(1), w.Version)

		got, err := s.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.Name, got.Name)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, w.At.Equal(got.At))
		assert.Nil(t, got.RemovedAt)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, utils.NewSixID())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("UpdateChecksVersion", func(t *testing.T) {
		s := newStore(t)
		w := newWidget("alpha", "a@example.com", true, 3, 0)
		require.NoError(t, s.Create(ctx, w))

		updated, err := s.Update(ctx, w.ID, 1, Patch{"name": "beta"})
		require.NoError(t, err)
		assert.Equal(t, "beta", updated.Name)
		assert.Equal(t, int64(2), updated.Version)
		assert.Equal(t, "a@example.com", updated.Email)

		_, err = s.Update(ctx, w.ID, 1, Patch{"name": "gamma"})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.True(t, IsStale(err))

		unchecked, err := s.Update(ctx, w.ID, 0, Patch{"score": 10})
		require.NoError(t, err)
		assert.Equal(t, int64(3), unchecked.Version)
		assert.Equal(t, int64(10), unchecked.Score)

		_, err = s.Update(ctx, utils.NewSixID(), 1, Patch{"name": "x"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		_, err = s.Update(ctx, w.ID, 0, Patch{"version": 9})
		assert.Error(t, err)
	})

	t.Run("UpdateSetsNullableTime", func(t *testing.T) {
		s := newStore(t)
		w := newWidget("alpha", "a@example.com", true, 3, 0)
		require.NoError(t, s.Create(ctx, w))

		removed := models.Timestamp(baseTime.Add(time.Hour))
		updated, err := s.Update(ctx, w.ID, 1, Patch{"removed_at": &removed, "active": false})
		require.NoError(t, err)
		require.NotNil(t, updated.RemovedAt)
		assert.True(t, removed.Equal(*updated.RemovedAt))
		assert.False(t, updated.Active)

		n, err := s.Count(ctx, NotNull("removed_at"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("PartialUniqueIndex", func(t *testing.T) {
		s := newStore(t)
		first := newWidget("one", "dup@example.com", true, 1, 0)
		require.NoError(t, s.Create(ctx, first))

		err := s.Create(ctx, newWidget("two", "dup@example.com", true, 1, 0))
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.True(t, IsDuplicate(err))

		// Inactive rows do not take part in the index.
		require.NoError(t, s.Create(ctx, newWidget("three", "dup@example.com", false, 1, 0)))
		require.NoError(t, s.Create(ctx, newWidget("four", "dup@example.com", false, 1, 0)))

		_, err = s.Update(ctx, first.ID, 1, Patch{"active": false})
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, newWidget("five", "dup@example.com", true, 1, 0)))

		active, err := s.Count(ctx, Eq("email", "dup@example.com"), Eq("active", true))
		require.NoError(t, err)
		assert.Equal(t, int64(1), active)
	})

	t.Run("ListFiltersAndOrder", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newWidget("a", "a@example.com", true, 5, 0)))
		require.NoError(t, s.Create(ctx, newWidget("b", "b@example.com", false, 7, time.Hour)))
		require.NoError(t, s.Create(ctx, newWidget("c", "c@example.com", true, 1, 2*time.Hour)))
		require.NoError(t, s.Create(ctx, newWidget("d", "d@example.com", true, 9, 3*time.Hour)))

		list, err := s.List(ctx, Query{Filters: []Filter{Eq("active", true)}, Order: []Order{{Field: "score", Desc: true}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "a", "c"}, names(list))

		list, err = s.List(ctx, Query{Filters: []Filter{Gte("at", baseTime.Add(time.Hour)), Lt("at", baseTime.Add(3*time.Hour))}, Order: []Order{{Field: "at"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, names(list))

		list, err = s.List(ctx, Query{Filters: []Filter{In("name", "a", "d", "zz")}, Order: []Order{{Field: "name"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "d"}, names(list))

		list, err = s.List(ctx, Query{Filters: []Filter{In("name")}})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = s.List(ctx, Query{Order: []Order{{Field: "at"}}, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, names(list))

		list, err = s.List(ctx, Query{Filters: []Filter{IsNull("removed_at"), Ne("name", "a")}, Order: []Order{{Field: "name"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "d"}, names(list))

		n, err := s.Count(ctx, Gt("score", 4))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		one, err := s.FindOne(ctx, Eq("email", "c@example.com"))
		require.NoError(t, err)
		assert.Equal(t, "c", one.Name)

		_, err = s.FindOne(ctx, Eq("email", "nobody@example.com"))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		w := newWidget("alpha", "a@example.com", true, 3, 0)
		require.NoError(t, s.Create(ctx, w))
		require.NoError(t, s.Delete(ctx, w.ID))

		_, err := s.Get(ctx, w.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, w.ID), apperrors.ErrNotFound)
	})

	t.Run("ConcurrentStaleWriters", func(t *testing.T) {
		s := newStore(t)
		w := newWidget("alpha", "a@example.com", true, 3, 0)
		require.NoError(t, s.Create(ctx, w))

		const writers = 2
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Update(ctx, w.ID, 1, Patch{"score": int64(100 + i)})
			}(i)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case IsStale(err):
				conflicts++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, conflicts)

		got, err := s.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})
}

func names(list []*widget) []string {
	out := make([]string, 0, len(list))
	for _, w := range list {
		out = append(out, w.Name)
	}
	return out
}
