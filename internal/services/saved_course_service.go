package services

import (
	"context"
	"fmt"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/guard"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

const kindSavedCourse = "saved_course"

// ISavedCourseService manages a student's course bookmarks.
type ISavedCourseService interface {
	// Toggle saves the course when it is not saved and removes it otherwise.
	// It reports whether the course is saved afterwards.
	Toggle(ctx context.Context, courseID utils.SixID, actor auth.Actor) (bool, error)
	Save(ctx context.Context, courseID utils.SixID, actor auth.Actor) (*models.SavedCourse, error)
	Remove(ctx context.Context, courseID utils.SixID, actor auth.Actor) error
	List(ctx context.Context, actor auth.Actor) ([]*models.SavedCourse, error)
}

type savedCourseService struct {
	saved   store.Store[models.SavedCourse]
	catalog ICatalogService
	guard   guard.IUniquenessGuard
}

func NewSavedCourseService(saved store.Store[models.SavedCourse], catalog ICatalogService, g *guard.Guard) ISavedCourseService {
	g.Register(kindSavedCourse, guard.LookupIn(saved))
	return &savedCourseService{saved: saved, catalog: catalog, guard: g}
}

func savedKey(userID string, courseID utils.SixID) map[string]any {
	return map[string]any{"user_id": userID, "course_id": courseID}
}

func requireStudent(actor auth.Actor) error {
	if actor.UserID == "" {
		return apperrors.Unauthorized("sign in to save courses")
	}
	return nil
}

func (s *savedCourseService) Toggle(ctx context.Context, courseID utils.SixID, actor auth.Actor) (bool, error) {
	if err := requireStudent(actor); err != nil {
		return false, err
	}
	existing, err := s.guard.EnsureUnique(ctx, kindSavedCourse, savedKey(actor.UserID, courseID))
	if err != nil {
		return false, err
	}
	if existing.AlreadyExists {
		if err := s.saved.Delete(ctx, existing.ExistingID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return false, err
		}
		return false, nil
	}
	if _, err := s.Save(ctx, courseID, actor); err != nil {
		return false, err
	}
	return true, nil
}

func (s *savedCourseService) Save(ctx context.Context, courseID utils.SixID, actor auth.Actor) (*models.SavedCourse, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetCourse(ctx, courseID); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("course", courseID.String())
		}
		return nil, err
	}

	doc := &models.SavedCourse{UserID: actor.UserID, CourseID: courseID, CreatedAt: models.Timestamp(time.Now())}
	// A concurrent save of the same pair resolves to the row that won.
	existing, err := guard.CreateOnce(ctx, s.guard, kindSavedCourse, savedKey(actor.UserID, courseID), s.saved, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to save course: %w", err)
	}
	if existing.AlreadyExists {
		return s.saved.Get(ctx, existing.ExistingID)
	}
	return doc, nil
}

func (s *savedCourseService) Remove(ctx context.Context, courseID utils.SixID, actor auth.Actor) error {
	if err := requireStudent(actor); err != nil {
		return err
	}
	existing, err := s.guard.EnsureUnique(ctx, kindSavedCourse, savedKey(actor.UserID, courseID))
	if err != nil || !existing.AlreadyExists {
		return err
	}
	if err := s.saved.Delete(ctx, existing.ExistingID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return nil
}

func (s *savedCourseService) List(ctx context.Context, actor auth.Actor) ([]*models.SavedCourse, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	return s.saved.List(ctx, store.Query{
		Filters: []store.Filter{store.Eq("user_id", actor.UserID)},
		Order:   []store.Order{{Field: "created_at", Desc: true}},
	})
}
