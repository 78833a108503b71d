package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/storage"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

// SubmitApplicationInput is the public application form.
type SubmitApplicationInput struct {
	StudentName   string       `json:"student_name" validate:"required,max=200"`
	StudentEmail  string       `json:"student_email" validate:"required,email,max=254"`
	StudentPhone  string       `json:"student_phone" validate:"required,max=40"`
	DateOfBirth   string       `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Nationality   string       `json:"nationality" validate:"max=80"`
	Address       string       `json:"address" validate:"max=500"`
	CourseID      *utils.SixID `json:"course_id"`
	UniversityID  *utils.SixID `json:"university_id"`
	DestinationID *utils.SixID `json:"destination_id"`
}

// EditApplicationInput changes student data. Nil fields are left alone.
type EditApplicationInput struct {
	Version      int64   `json:"version" validate:"required,min=1"`
	StudentName  *string `json:"student_name" validate:"omitempty,min=1,max=200"`
	StudentPhone *string `json:"student_phone" validate:"omitempty,min=1,max=40"`
	DateOfBirth  *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Nationality  *string `json:"nationality" validate:"omitempty,max=80"`
	Address      *string `json:"address" validate:"omitempty,max=500"`
}

// ApplicationStatusInput is an admin status change.
type ApplicationStatusInput struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Status  string `json:"status" validate:"required"`
	Note    string `json:"note" validate:"max=1000"`
}

// DocumentUploadInput describes a file the student is about to upload.
type DocumentUploadInput struct {
	Version  int64  `json:"version" validate:"required,min=1"`
	Name     string `json:"name" validate:"required,max=200"`
	Size     int64  `json:"size" validate:"required,min=1"`
	MimeType string `json:"mime_type" validate:"required"`
}

// DocumentUpload is the result of RequestDocumentUpload.
type DocumentUpload struct {
	Application *models.Application      `json:"application"`
	Document    models.Document          `json:"document"`
	Upload      *storage.PresignedUpload `json:"upload"`
}

// ApplicationFilter narrows the admin list.
type ApplicationFilter struct {
	Status string
	Email  string
	Page
}

// DocumentPolicy bounds uploaded documents.
type DocumentPolicy struct {
	MaxSizeBytes int64
	MimeTypes    []string
}

func (p DocumentPolicy) allows(mime string) bool {
	for _, m := range p.MimeTypes {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

// IApplicationService manages course applications.
type IApplicationService interface {
	Submit(ctx context.Context, input SubmitApplicationInput, actor auth.Actor) (*models.Application, error)
	Edit(ctx context.Context, id utils.SixID, input EditApplicationInput, actor auth.Actor) (*models.Application, error)
	UpdateStatus(ctx context.Context, id utils.SixID, input ApplicationStatusInput, actor auth.Actor) (*models.Application, error)
	Withdraw(ctx context.Context, id utils.SixID, version int64, actor auth.Actor) (*models.Application, error)
	RequestDocumentUpload(ctx context.Context, id utils.SixID, input DocumentUploadInput, actor auth.Actor) (*DocumentUpload, error)
	Get(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Application, error)
	ListForStudent(ctx context.Context, actor auth.Actor, page Page) ([]*models.Application, error)
	ListAll(ctx context.Context, filter ApplicationFilter) ([]*models.Application, error)
	History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error)
}

type applicationService struct {
	applications store.Store[models.Application]
	catalog      ICatalogService
	workflow     *workflow.Workflow
	history      IHistoryService
	notifier     notify.Gateway
	documents    storage.IDocumentStorage // optional
	policy       DocumentPolicy
	siteURL      string
}

// NewApplicationService wires the application service. documents may be nil,
// in which case uploads are reported as unavailable.
func NewApplicationService(
	applications store.Store[models.Application],
	catalog ICatalogService,
	wf *workflow.Workflow,
	history IHistoryService,
	notifier notify.Gateway,
	documents storage.IDocumentStorage,
	policy DocumentPolicy,
	siteURL string,
) IApplicationService {
	return &applicationService{
		applications: applications,
		catalog:      catalog,
		workflow:     wf,
		history:      history,
		notifier:     notifier,
		documents:    documents,
		policy:       policy,
		siteURL:      siteURL,
	}
}

func (s *applicationService) Submit(ctx context.Context, input SubmitApplicationInput, actor auth.Actor) (*models.Application, error) {
	input.StudentName = trimmed(input.StudentName)
	input.StudentEmail = models.NormalizeEmail(input.StudentEmail)
	input.StudentPhone = trimmed(input.StudentPhone)
	input.DateOfBirth = trimmed(input.DateOfBirth)
	input.Nationality = trimmed(input.Nationality)
	input.Address = trimmed(input.Address)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.workflow.Now()
	app := &models.Application{
		UserID:        actor.UserID,
		StudentName:   input.StudentName,
		StudentEmail:  input.StudentEmail,
		StudentPhone:  input.StudentPhone,
		DateOfBirth:   input.DateOfBirth,
		Nationality:   input.Nationality,
		Address:       input.Address,
		CourseID:      input.CourseID,
		UniversityID:  input.UniversityID,
		DestinationID: input.DestinationID,
		Documents:     []models.Document{},
		Status:        models.ApplicationSubmitted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if input.CourseID != nil {
		course, err := s.catalog.GetCourse(ctx, *input.CourseID)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ValidationFields(map[string]string{"course_id": "unknown course"})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve course: %w", err)
		}
		if course.UniversityID != nil {
			app.UniversityID = course.UniversityID
		}
		if course.DestinationID != nil {
			app.DestinationID = course.DestinationID
		}
	}

	// Reference codes are random; a clash with an existing one just draws again.
	err := db.WithRetries(func() error {
		app.ReferenceCode = utils.ReferenceCode("APP")
		return s.applications.Create(ctx, app)
	}, db.DefaultMaxRetries, store.IsDuplicate)
	if err != nil {
		return nil, fmt.Errorf("failed to submit application: %w", err)
	}

	logger.Info().Str("application_id", app.ID.String()).Str("reference_code", app.ReferenceCode).Msg("application submitted")
	return app, nil
}

// load returns the application if actor may see it. Students get NotFound for
// applications they do not own.
func (s *applicationService) load(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Application, error) {
	app, err := s.applications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !app.OwnedBy(actor.UserID, actor.Email) {
		return nil, apperrors.NotFound("application", id.String())
	}
	return app, nil
}

func (s *applicationService) Get(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Application, error) {
	return s.load(ctx, id, actor)
}

func (s *applicationService) Edit(ctx context.Context, id utils.SixID, input EditApplicationInput, actor auth.Actor) (*models.Application, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	app, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !app.Editable() {
		return nil, apperrors.Conflict("application %s is %s and can no longer be edited", app.ReferenceCode, app.Status)
	}

	patch := store.Patch{}
	set := func(field string, v *string) {
		if v != nil {
			patch[field] = trimmed(*v)
		}
	}
	set("student_name", input.StudentName)
	set("student_phone", input.StudentPhone)
	set("date_of_birth", input.DateOfBirth)
	set("nationality", input.Nationality)
	set("address", input.Address)
	if len(patch) == 0 {
		return nil, apperrors.Validation("nothing to update")
	}
	patch["updated_at"] = s.workflow.Now()

	return s.applications.Update(ctx, id, input.Version, patch)
}

func (s *applicationService) UpdateStatus(ctx context.Context, id utils.SixID, input ApplicationStatusInput, actor auth.Actor) (*models.Application, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can change application status")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	app, err := s.applications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, app, input.Version, input.Status, input.Note, actor)
}

func (s *applicationService) Withdraw(ctx context.Context, id utils.SixID, version int64, actor auth.Actor) (*models.Application, error) {
	if version <= 0 {
		return nil, apperrors.ValidationFields(map[string]string{"version": "is required"})
	}
	app, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return nil, apperrors.Forbidden("only the student can withdraw an application")
	}
	return s.transition(ctx, app, version, string(models.ApplicationWithdrawn), "", actor)
}

// transition validates the move against the persisted state, writes it under
// the caller's version and then runs the secondary effects.
func (s *applicationService) transition(ctx context.Context, app *models.Application, version int64, to, note string, actor auth.Actor) (*models.Application, error) {
	change, err := s.workflow.Transition(app, to, actor.Label())
	if err != nil {
		return nil, err
	}
	updated, err := s.applications.Update(ctx, app.ID, version, change.Patch())
	if err != nil {
		return nil, err
	}

	s.history.Record(ctx, change.Record(note))
	notifyBestEffort(ctx, s.notifier, notify.EmailTaskPayload{
		To:         updated.StudentEmail,
		TemplateID: notify.TemplateApplicationStatusChanged,
		Data: map[string]interface{}{
			"student_name":   updated.StudentName,
			"reference_code": updated.ReferenceCode,
			"status":         string(updated.Status),
			"site_url":       s.siteURL,
		},
	}, updated.ID.String())
	return updated, nil
}

func (s *applicationService) RequestDocumentUpload(ctx context.Context, id utils.SixID, input DocumentUploadInput, actor auth.Actor) (*DocumentUpload, error) {
	input.Name = trimmed(input.Name)
	input.MimeType = strings.ToLower(trimmed(input.MimeType))
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if s.policy.MaxSizeBytes > 0 && input.Size > s.policy.MaxSizeBytes {
		return nil, apperrors.ValidationFields(map[string]string{"size": fmt.Sprintf("must be at most %d bytes", s.policy.MaxSizeBytes)})
	}
	if !s.policy.allows(input.MimeType) {
		return nil, apperrors.ValidationFields(map[string]string{"mime_type": "file type is not accepted"})
	}

	app, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !app.Editable() {
		return nil, apperrors.Conflict("application %s is %s and no longer accepts documents", app.ReferenceCode, app.Status)
	}
	if s.documents == nil {
		return nil, apperrors.Upstream("document storage", fmt.Errorf("not configured"))
	}

	upload, err := s.documents.PresignDocumentUpload(ctx, app.ID.String(), input.Name, input.MimeType, input.Size)
	if err != nil {
		return nil, apperrors.Upstream("document storage", err)
	}

	now := s.workflow.Now()
	doc := models.Document{
		Name:       input.Name,
		Size:       input.Size,
		MimeType:   input.MimeType,
		StorageKey: upload.Key,
		AddedAt:    now,
	}
	documents := append(append([]models.Document{}, app.Documents...), doc)
	updated, err := s.applications.Update(ctx, app.ID, input.Version, store.Patch{
		"documents":  documents,
		"updated_at": now,
	})
	if err != nil {
		return nil, err
	}
	return &DocumentUpload{Application: updated, Document: doc, Upload: upload}, nil
}

func (s *applicationService) ListForStudent(ctx context.Context, actor auth.Actor, page Page) ([]*models.Application, error) {
	var owner store.Filter
	switch {
	case actor.UserID != "":
		owner = store.Eq("user_id", actor.UserID)
	case actor.Email != "":
		owner = store.Eq("student_email", models.NormalizeEmail(actor.Email))
	default:
		return nil, apperrors.Unauthorized("student identity required")
	}
	page = page.normalized()
	return s.applications.List(ctx, store.Query{
		Filters: []store.Filter{owner},
		Order:   []store.Order{{Field: "created_at", Desc: true}},
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (s *applicationService) ListAll(ctx context.Context, filter ApplicationFilter) ([]*models.Application, error) {
	var filters []store.Filter
	if filter.Status != "" {
		if !workflow.IsKnownState(models.KindApplication, filter.Status) {
			return nil, apperrors.ValidationFields(map[string]string{"status": "unknown status"})
		}
		filters = append(filters, store.Eq("status", filter.Status))
	}
	if filter.Email != "" {
		filters = append(filters, store.Eq("student_email", models.NormalizeEmail(filter.Email)))
	}
	page := filter.Page.normalized()
	return s.applications.List(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Field: "created_at", Desc: true}},
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

func (s *applicationService) History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error) {
	return s.history.List(ctx, models.KindApplication, id)
}
