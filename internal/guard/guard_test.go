package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

func newSavedCourses() (*Guard, store.Store[models.SavedCourse]) {
	s := store.NewMemoryStore[models.SavedCourse](store.SavedCourses)
	g := New()
	g.Register("saved_course", LookupIn[models.SavedCourse](s))
	return g, s
}

func TestEnsureUnique(t *testing.T) {
	ctx := context.Background()
	g, s := newSavedCourses()
	courseID := utils.NewSixID()
	key := map[string]any{"user_id": "user-1", "course_id": courseID}

	res, err := g.EnsureUnique(ctx, "saved_course", key)
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)

	sc := &models.SavedCourse{UserID: "user-1", CourseID: courseID, CreatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, sc))

	res, err = g.EnsureUnique(ctx, "saved_course", key)
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, sc.ID, res.ExistingID)
}

func TestEnsureUnique_UnknownKindAndEmptyKey(t *testing.T) {
	g, _ := newSavedCourses()
	_, err := g.EnsureUnique(context.Background(), "nope", map[string]any{"a": 1})
	assert.Error(t, err)

	_, err = g.EnsureUnique(context.Background(), "saved_course", nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLookupIn_ExtraFilters(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore[models.MarketingConsent](store.MarketingConsents)
	g := New()
	g.Register("consent", LookupIn[models.MarketingConsent](s, store.Eq("is_active", true)))

	require.NoError(t, s.Create(ctx, &models.MarketingConsent{StudentEmail: "a@example.com", IsActive: false}))

	res, err := g.EnsureUnique(ctx, "consent", map[string]any{"student_email": "a@example.com"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
}

func TestCreateOnce_ConcurrentWritersShareOneRow(t *testing.T) {
	ctx := context.Background()
	g, s := newSavedCourses()
	courseID := utils.NewSixID()
	key := map[string]any{"user_id": "user-1", "course_id": courseID}

	const writers = 8
	results := make([]Existence, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := &models.SavedCourse{UserID: "user-1", CourseID: courseID, CreatedAt: time.Now()}
			results[i], errs[i] = CreateOnce[models.SavedCourse](ctx, g, "saved_course", key, s, doc)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}
	n, err := s.Count(ctx, store.Eq("user_id", "user-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	created := 0
	for _, r := range results {
		if !r.AlreadyExists {
			created++
		}
	}
	assert.Equal(t, 1, created)
}
