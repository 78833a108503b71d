package services

import (
	"context"
	"fmt"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

// CreateBookingInput is the public counselling booking form.
type CreateBookingInput struct {
	StudentName           string `json:"student_name" validate:"required,max=200"`
	StudentEmail          string `json:"student_email" validate:"required,email,max=254"`
	StudentPhone          string `json:"student_phone" validate:"required,max=40"`
	PreferredDestination  string `json:"preferred_destination" validate:"max=120"`
	StudyLevel            string `json:"study_level" validate:"max=60"`
	CourseInterest        string `json:"course_interest" validate:"max=200"`
	CurrentEducationLevel string `json:"current_education_level" validate:"max=120"`
	EnglishTestScore      string `json:"english_test_score" validate:"max=60"`
	WorkExperience        string `json:"work_experience" validate:"max=500"`
	Message               string `json:"message" validate:"max=2000"`
	PreferredDate         string `json:"preferred_date" validate:"omitempty,datetime=2006-01-02"`
	PreferredTime         string `json:"preferred_time" validate:"max=20"`
	AgreesToTerms         bool   `json:"agrees_to_terms"`
	AgreesToContact       bool   `json:"agrees_to_contact"`
	AgreesToMarketing     bool   `json:"agrees_to_marketing"`
}

// BookingStatusInput changes status, admin notes or both.
type BookingStatusInput struct {
	Version    int64   `json:"version" validate:"required,min=1"`
	Status     *string `json:"status"`
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=5000"`
}

// BookingFilter narrows the admin list.
type BookingFilter struct {
	Status string
	Email  string
	Page
}

// IBookingService manages counselling bookings.
type IBookingService interface {
	Create(ctx context.Context, input CreateBookingInput, humanVerified bool, actor auth.Actor) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id utils.SixID, input BookingStatusInput, actor auth.Actor) (*models.Booking, error)
	Get(ctx context.Context, id utils.SixID) (*models.Booking, error)
	ListForStudent(ctx context.Context, actor auth.Actor, page Page) ([]*models.Booking, error)
	ListAll(ctx context.Context, filter BookingFilter) ([]*models.Booking, error)
	History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error)
}

type bookingService struct {
	bookings   store.Store[models.Booking]
	catalog    ICatalogService
	consents   IConsentService
	workflow   *workflow.Workflow
	history    IHistoryService
	notifier   notify.Gateway
	adminEmail string
}

// NewBookingService wires the booking service. adminEmail receives the
// new-booking notification and may be empty.
func NewBookingService(
	bookings store.Store[models.Booking],
	catalog ICatalogService,
	consents IConsentService,
	wf *workflow.Workflow,
	history IHistoryService,
	notifier notify.Gateway,
	adminEmail string,
) IBookingService {
	return &bookingService{
		bookings:   bookings,
		catalog:    catalog,
		consents:   consents,
		workflow:   wf,
		history:    history,
		notifier:   notifier,
		adminEmail: adminEmail,
	}
}

func (s *bookingService) Create(ctx context.Context, input CreateBookingInput, humanVerified bool, actor auth.Actor) (*models.Booking, error) {
	if !humanVerified {
		return nil, apperrors.Validation("human verification failed")
	}
	input.StudentName = trimmed(input.StudentName)
	input.StudentEmail = models.NormalizeEmail(input.StudentEmail)
	input.StudentPhone = trimmed(input.StudentPhone)
	input.PreferredDestination = trimmed(input.PreferredDestination)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.AgreesToTerms {
		return nil, apperrors.ValidationFields(map[string]string{"agrees_to_terms": "must be accepted"})
	}

	now := s.workflow.Now()
	booking := &models.Booking{
		UserID:                actor.UserID,
		StudentName:           input.StudentName,
		StudentEmail:          input.StudentEmail,
		StudentPhone:          input.StudentPhone,
		StudyLevel:            trimmed(input.StudyLevel),
		CourseInterest:        trimmed(input.CourseInterest),
		CurrentEducationLevel: trimmed(input.CurrentEducationLevel),
		EnglishTestScore:      trimmed(input.EnglishTestScore),
		WorkExperience:        trimmed(input.WorkExperience),
		Message:               trimmed(input.Message),
		PreferredDate:         trimmed(input.PreferredDate),
		PreferredTime:         trimmed(input.PreferredTime),
		AgreesToTerms:         input.AgreesToTerms,
		AgreesToContact:       input.AgreesToContact,
		AgreesToMarketing:     input.AgreesToMarketing,
		Status:                models.BookingPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if input.PreferredDestination != "" {
		dest, err := s.catalog.ResolveDestination(ctx, input.PreferredDestination)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ValidationFields(map[string]string{"preferred_destination": "unknown destination"})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve destination: %w", err)
		}
		booking.PreferredDestinationID = &dest.ID
		booking.PreferredDestination = dest.Name
	}

	err := db.WithRetries(func() error {
		booking.ReferenceCode = utils.ReferenceCode("BK")
		return s.bookings.Create(ctx, booking)
	}, db.DefaultMaxRetries, store.IsDuplicate)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	logger.Info().Str("booking_id", booking.ID.String()).Str("reference_code", booking.ReferenceCode).Msg("booking created")

	if booking.AgreesToMarketing {
		if _, err := s.consents.OptIn(ctx, OptInInput{
			Email:  booking.StudentEmail,
			Name:   booking.StudentName,
			Phone:  booking.StudentPhone,
			Source: models.ConsentSourceCounsellingBooking,
		}); err != nil {
			logger.Warn().Err(err).Str("booking_id", booking.ID.String()).Msg("failed to record marketing consent for booking")
		}
	}

	data := map[string]interface{}{
		"student_name":          booking.StudentName,
		"student_email":         booking.StudentEmail,
		"student_phone":         booking.StudentPhone,
		"reference_code":        booking.ReferenceCode,
		"preferred_destination": booking.PreferredDestination,
		"preferred_date":        booking.PreferredDate,
		"preferred_time":        booking.PreferredTime,
		"study_level":           booking.StudyLevel,
		"message":               booking.Message,
	}
	notifyBestEffort(ctx, s.notifier, notify.EmailTaskPayload{
		To:         booking.StudentEmail,
		TemplateID: notify.TemplateBookingReceived,
		Data:       data,
	}, booking.ID.String())
	if s.adminEmail != "" {
		notifyBestEffort(ctx, s.notifier, notify.EmailTaskPayload{
			To:         s.adminEmail,
			TemplateID: notify.TemplateBookingAdminNotification,
			Data:       data,
		}, booking.ID.String())
	}
	return booking, nil
}

func (s *bookingService) UpdateStatus(ctx context.Context, id utils.SixID, input BookingStatusInput, actor auth.Actor) (*models.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can update bookings")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Status == nil && input.AdminNotes == nil {
		return nil, apperrors.Validation("nothing to update")
	}

	booking, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		patch  store.Patch
		change *workflow.Change
	)
	if input.Status != nil {
		c, err := s.workflow.Transition(booking, *input.Status, actor.Label())
		if err != nil {
			return nil, err
		}
		change = &c
		patch = c.Patch()
	} else {
		patch = store.Patch{"updated_at": s.workflow.Now()}
	}
	if input.AdminNotes != nil {
		patch["admin_notes"] = trimmed(*input.AdminNotes)
	}

	updated, err := s.bookings.Update(ctx, id, input.Version, patch)
	if err != nil {
		return nil, err
	}
	if change != nil {
		note := ""
		if input.AdminNotes != nil {
			note = updated.AdminNotes
		}
		s.history.Record(ctx, change.Record(note))
	} else {
		logger.Info().Str("booking_id", id.String()).Str("actor", actor.Label()).Msg("booking notes updated")
	}
	return updated, nil
}

func (s *bookingService) Get(ctx context.Context, id utils.SixID) (*models.Booking, error) {
	return s.bookings.Get(ctx, id)
}

func (s *bookingService) ListForStudent(ctx context.Context, actor auth.Actor, page Page) ([]*models.Booking, error) {
	var owner store.Filter
	switch {
	case actor.Email != "":
		owner = store.Eq("student_email", models.NormalizeEmail(actor.Email))
	case actor.UserID != "":
		owner = store.Eq("user_id", actor.UserID)
	default:
		return nil, apperrors.Unauthorized("student identity required")
	}
	page = page.normalized()
	return s.bookings.List(ctx, store.Query{
		Filters: []store.Filter{owner},
		Order:   []store.Order{{Field: "created_at", Desc: true}},
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (s *bookingService) ListAll(ctx context.Context, filter BookingFilter) ([]*models.Booking, error) {
	var filters []store.Filter
	if filter.Status != "" {
		if !workflow.IsKnownState(models.KindBooking, filter.Status) {
			return nil, apperrors.ValidationFields(map[string]string{"status": "unknown status"})
		}
		filters = append(filters, store.Eq("status", filter.Status))
	}
	if filter.Email != "" {
		filters = append(filters, store.Eq("student_email", models.NormalizeEmail(filter.Email)))
	}
	page := filter.Page.normalized()
	return s.bookings.List(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Field: "created_at", Desc: true}},
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (s *bookingService) History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error) {
	return s.history.List(ctx, models.KindBooking, id)
}
