package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/cache"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// CourseFilter narrows ListCourses.
type CourseFilter struct {
	DestinationID *utils.SixID
	StudyLevel    string
	IncludeDrafts bool
	Limit         int
	Offset        int
}

// SaveCourseInput creates a course when ID is zero and replaces its fields otherwise.
type SaveCourseInput struct {
	ID             utils.SixID  `json:"id"`
	Title          string       `json:"title" validate:"required,max=200"`
	Slug           string       `json:"slug" validate:"required,max=120"`
	UniversityID   *utils.SixID `json:"university_id"`
	UniversityName string       `json:"university_name" validate:"max=200"`
	DestinationID  *utils.SixID `json:"destination_id"`
	StudyLevel     string       `json:"study_level" validate:"max=60"`
	IsPublished    bool         `json:"is_published"`
}

// SaveDestinationInput creates or renames a destination.
type SaveDestinationInput struct {
	ID   utils.SixID `json:"id"`
	Name string      `json:"name" validate:"required,max=120"`
	Slug string      `json:"slug" validate:"required,max=120"`
}

// ICatalogService serves the course and destination lookups other services depend on.
type ICatalogService interface {
	GetCourse(ctx context.Context, id utils.SixID) (*models.Course, error)
	GetDestination(ctx context.Context, id utils.SixID) (*models.Destination, error)
	// ResolveDestination accepts a destination id or slug.
	ResolveDestination(ctx context.Context, ref string) (*models.Destination, error)
	ListCourses(ctx context.Context, filter CourseFilter) ([]*models.Course, error)
	ListDestinations(ctx context.Context) ([]*models.Destination, error)
	SaveCourse(ctx context.Context, input SaveCourseInput, actor auth.Actor) (*models.Course, error)
	SaveDestination(ctx context.Context, input SaveDestinationInput, actor auth.Actor) (*models.Destination, error)
}

type catalogService struct {
	courses      store.Store[models.Course]
	destinations store.Store[models.Destination]
	cache        cache.ICache // optional
	ttl          time.Duration
}

// NewCatalogService wires the catalog. cache may be nil.
func NewCatalogService(courses store.Store[models.Course], destinations store.Store[models.Destination], c cache.ICache, ttl time.Duration) ICatalogService {
	return &catalogService{courses: courses, destinations: destinations, cache: c, ttl: ttl}
}

func courseKey(id utils.SixID) string      { return "course:" + id.String() }
func destinationKey(id utils.SixID) string { return "destination:" + id.String() }

// readThrough serves key from the cache or loads it and fills the cache.
// Cache failures never fail the lookup.
func readThrough[T any](ctx context.Context, s *catalogService, key string, load func() (*T, error)) (*T, error) {
	if s.cache != nil {
		var cached T
		found, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("catalog cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	item, err := load()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, item, s.ttl); err != nil {
			logger.Debug().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
	}
	return item, nil
}

func (s *catalogService) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate catalog cache")
	}
}

func (s *catalogService) GetCourse(ctx context.Context, id utils.SixID) (*models.Course, error) {
	return readThrough(ctx, s, courseKey(id), func() (*models.Course, error) {
		return s.courses.Get(ctx, id)
	})
}

func (s *catalogService) GetDestination(ctx context.Context, id utils.SixID) (*models.Destination, error) {
	return readThrough(ctx, s, destinationKey(id), func() (*models.Destination, error) {
		return s.destinations.Get(ctx, id)
	})
}

func (s *catalogService) ResolveDestination(ctx context.Context, ref string) (*models.Destination, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.Validation("destination is empty")
	}
	if id, err := utils.ParseSixID(ref); err == nil && !id.IsZero() {
		dest, err := s.GetDestination(ctx, id)
		if err == nil || !apperrors.Is(err, apperrors.ErrNotFound) {
			return dest, err
		}
	}
	return s.destinations.FindOne(ctx, store.Eq("slug", strings.ToLower(ref)))
}

func (s *catalogService) ListCourses(ctx context.Context, filter CourseFilter) ([]*models.Course, error) {
	var filters []store.Filter
	if !filter.IncludeDrafts {
		filters = append(filters, store.Eq("is_published", true))
	}
	if filter.DestinationID != nil {
		filters = append(filters, store.Eq("destination_id", *filter.DestinationID))
	}
	if filter.StudyLevel != "" {
		filters = append(filters, store.Eq("study_level", filter.StudyLevel))
	}
	return s.courses.List(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Field: "title"}},
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

func (s *catalogService) ListDestinations(ctx context.Context) ([]*models.Destination, error) {
	return s.destinations.List(ctx, store.Query{Order: []store.Order{{Field: "name"}}})
}

func (s *catalogService) SaveCourse(ctx context.Context, input SaveCourseInput, actor auth.Actor) (*models.Course, error) {
	input.Title = trimmed(input.Title)
	input.Slug = strings.ToLower(trimmed(input.Slug))
	input.UniversityName = trimmed(input.UniversityName)
	input.StudyLevel = trimmed(input.StudyLevel)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.DestinationID != nil {
		if _, err := s.GetDestination(ctx, *input.DestinationID); err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.ValidationFields(map[string]string{"destination_id": "unknown destination"})
			}
			return nil, err
		}
	}

	now := models.Timestamp(time.Now())
	if input.ID.IsZero() {
		course := &models.Course{
			Title:          input.Title,
			Slug:           input.Slug,
			UniversityID:   input.UniversityID,
			UniversityName: input.UniversityName,
			DestinationID:  input.DestinationID,
			StudyLevel:     input.StudyLevel,
			IsPublished:    input.IsPublished,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.courses.Create(ctx, course); err != nil {
			return nil, fmt.Errorf("failed to create course: %w", err)
		}
		logger.Info().Str("course_id", course.ID.String()).Str("actor", actor.Label()).Msg("course created")
		return course, nil
	}

	course, err := s.courses.Update(ctx, input.ID, 0, store.Patch{
		"title":           input.Title,
		"slug":            input.Slug,
		"university_id":   input.UniversityID,
		"university_name": input.UniversityName,
		"destination_id":  input.DestinationID,
		"study_level":     input.StudyLevel,
		"is_published":    input.IsPublished,
		"updated_at":      now,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, courseKey(course.ID))
	logger.Info().Str("course_id", course.ID.String()).Str("actor", actor.Label()).Msg("course updated")
	return course, nil
}

func (s *catalogService) SaveDestination(ctx context.Context, input SaveDestinationInput, actor auth.Actor) (*models.Destination, error) {
	input.Name = trimmed(input.Name)
	input.Slug = strings.ToLower(trimmed(input.Slug))
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := models.Timestamp(time.Now())
	if input.ID.IsZero() {
		dest := &models.Destination{Name: input.Name, Slug: input.Slug, CreatedAt: now, UpdatedAt: now}
		if err := s.destinations.Create(ctx, dest); err != nil {
			return nil, fmt.Errorf("failed to create destination: %w", err)
		}
		logger.Info().Str("destination_id", dest.ID.String()).Str("actor", actor.Label()).Msg("destination created")
		return dest, nil
	}

	dest, err := s.destinations.Update(ctx, input.ID, 0, store.Patch{"name": input.Name, "slug": input.Slug, "updated_at": now})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, destinationKey(dest.ID))
	return dest, nil
}
