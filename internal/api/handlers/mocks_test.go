package handlers_test

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// --- Mocks ---

// MockApplicationService
type MockApplicationService struct {
	mock.Mock
}

func (m *MockApplicationService) app(args mock.Arguments) (*models.Application, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockApplicationService) Submit(ctx context.Context, input services.SubmitApplicationInput, actor auth.Actor) (*models.Application, error) {
	return m.app(m.Called(ctx, input, actor))
}
func (m *MockApplicationService) Edit(ctx context.Context, id utils.SixID, input services.EditApplicationInput, actor auth.Actor) (*models.Application, error) {
	return m.app(m.Called(ctx, id, input, actor))
}
func (m *MockApplicationService) UpdateStatus(ctx context.Context, id utils.SixID, input services.ApplicationStatusInput, actor auth.Actor) (*models.Application, error) {
	return m.app(m.Called(ctx, id, input, actor))
}
func (m *MockApplicationService) Withdraw(ctx context.Context, id utils.SixID, version int64, actor auth.Actor) (*models.Application, error) {
	return m.app(m.Called(ctx, id, version, actor))
}
func (m *MockApplicationService) RequestDocumentUpload(ctx context.Context, id utils.SixID, input services.DocumentUploadInput, actor auth.Actor) (*services.DocumentUpload, error) {
	args := m.Called(ctx, id, input, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DocumentUpload), args.Error(1)
}
func (m *MockApplicationService) Get(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Application, error) {
	return m.app(m.Called(ctx, id, actor))
}
func (m *MockApplicationService) ListForStudent(ctx context.Context, actor auth.Actor, page services.Page) ([]*models.Application, error) {
	args := m.Called(ctx, actor, page)
	return args.Get(0).([]*models.Application), args.Error(1)
}
func (m *MockApplicationService) ListAll(ctx context.Context, filter services.ApplicationFilter) ([]*models.Application, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.Application), args.Error(1)
}
func (m *MockApplicationService) History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]*models.StatusChange), args.Error(1)
}

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) booking(args mock.Arguments) (*models.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingService) Create(ctx context.Context, input services.CreateBookingInput, humanVerified bool, actor auth.Actor) (*models.Booking, error) {
	return m.booking(m.Called(ctx, input, humanVerified, actor))
}
func (m *MockBookingService) UpdateStatus(ctx context.Context, id utils.SixID, input services.BookingStatusInput, actor auth.Actor) (*models.Booking, error) {
	return m.booking(m.Called(ctx, id, input, actor))
}
func (m *MockBookingService) Get(ctx context.Context, id utils.SixID) (*models.Booking, error) {
	return m.booking(m.Called(ctx, id))
}
func (m *MockBookingService) ListForStudent(ctx context.Context, actor auth.Actor, page services.Page) ([]*models.Booking, error) {
	args := m.Called(ctx, actor, page)
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *MockBookingService) ListAll(ctx context.Context, filter services.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *MockBookingService) History(ctx context.Context, id utils.SixID) ([]*models.StatusChange, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]*models.StatusChange), args.Error(1)
}

// MockConsentService
type MockConsentService struct {
	mock.Mock
}

func (m *MockConsentService) OptIn(ctx context.Context, input services.OptInInput) (*models.MarketingConsent, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MarketingConsent), args.Error(1)
}
func (m *MockConsentService) OptOut(ctx context.Context, email string, actor string) error {
	return m.Called(ctx, email, actor).Error(0)
}
func (m *MockConsentService) OptOutWithToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}
func (m *MockConsentService) EligibleRecipients(ctx context.Context, selectedIDs []utils.SixID) ([]models.Recipient, error) {
	args := m.Called(ctx, selectedIDs)
	return args.Get(0).([]models.Recipient), args.Error(1)
}
func (m *MockConsentService) List(ctx context.Context, filter services.ConsentFilter) ([]*models.MarketingConsent, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.MarketingConsent), args.Error(1)
}
func (m *MockConsentService) ExportCSV(ctx context.Context, w io.Writer) error {
	args := m.Called(ctx, w)
	if fn, ok := args.Get(0).(func(io.Writer) error); ok {
		return fn(w)
	}
	return args.Error(0)
}
func (m *MockConsentService) Reconcile(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

// MockCampaignService
type MockCampaignService struct {
	mock.Mock
}

func (m *MockCampaignService) Send(ctx context.Context, input services.SendCampaignInput, actor auth.Actor) (*services.CampaignResult, error) {
	args := m.Called(ctx, input, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CampaignResult), args.Error(1)
}

// MockAgentService
type MockAgentService struct {
	mock.Mock
}

func (m *MockAgentService) agent(args mock.Arguments) (*models.Agent, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentService) Invite(ctx context.Context, input services.InviteAgentInput, actor auth.Actor) (*models.Agent, error) {
	return m.agent(m.Called(ctx, input, actor))
}
func (m *MockAgentService) ResendInvitation(ctx context.Context, id utils.SixID, actor auth.Actor) (*models.Agent, error) {
	return m.agent(m.Called(ctx, id, actor))
}
func (m *MockAgentService) Activate(ctx context.Context, input services.ActivateAgentInput) (*models.Agent, error) {
	return m.agent(m.Called(ctx, input))
}
func (m *MockAgentService) Update(ctx context.Context, id utils.SixID, input services.UpdateAgentInput, actor auth.Actor) (*models.Agent, error) {
	return m.agent(m.Called(ctx, id, input, actor))
}
func (m *MockAgentService) SetActive(ctx context.Context, id utils.SixID, version int64, active bool, actor auth.Actor) (*models.Agent, error) {
	return m.agent(m.Called(ctx, id, version, active, actor))
}
func (m *MockAgentService) Delete(ctx context.Context, id utils.SixID, actor auth.Actor) error {
	return m.Called(ctx, id, actor).Error(0)
}
func (m *MockAgentService) Get(ctx context.Context, id utils.SixID) (*models.Agent, error) {
	return m.agent(m.Called(ctx, id))
}
func (m *MockAgentService) List(ctx context.Context, page services.Page) ([]*models.Agent, error) {
	args := m.Called(ctx, page)
	return args.Get(0).([]*models.Agent), args.Error(1)
}
func (m *MockAgentService) Authenticate(ctx context.Context, email, password string) (*models.Agent, error) {
	return m.agent(m.Called(ctx, email, password))
}

// MockAuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LoginResult), args.Error(1)
}

// MockSavedCourseService
type MockSavedCourseService struct {
	mock.Mock
}

func (m *MockSavedCourseService) Toggle(ctx context.Context, courseID utils.SixID, actor auth.Actor) (bool, error) {
	args := m.Called(ctx, courseID, actor)
	return args.Bool(0), args.Error(1)
}
func (m *MockSavedCourseService) Save(ctx context.Context, courseID utils.SixID, actor auth.Actor) (*models.SavedCourse, error) {
	args := m.Called(ctx, courseID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SavedCourse), args.Error(1)
}
func (m *MockSavedCourseService) Remove(ctx context.Context, courseID utils.SixID, actor auth.Actor) error {
	return m.Called(ctx, courseID, actor).Error(0)
}
func (m *MockSavedCourseService) List(ctx context.Context, actor auth.Actor) ([]*models.SavedCourse, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]*models.SavedCourse), args.Error(1)
}

// MockCatalogService
type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) GetCourse(ctx context.Context, id utils.SixID) (*models.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}
func (m *MockCatalogService) GetDestination(ctx context.Context, id utils.SixID) (*models.Destination, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Destination), args.Error(1)
}
func (m *MockCatalogService) ResolveDestination(ctx context.Context, ref string) (*models.Destination, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Destination), args.Error(1)
}
func (m *MockCatalogService) ListCourses(ctx context.Context, filter services.CourseFilter) ([]*models.Course, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*models.Course), args.Error(1)
}
func (m *MockCatalogService) ListDestinations(ctx context.Context) ([]*models.Destination, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Destination), args.Error(1)
}
func (m *MockCatalogService) SaveCourse(ctx context.Context, input services.SaveCourseInput, actor auth.Actor) (*models.Course, error) {
	args := m.Called(ctx, input, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}
func (m *MockCatalogService) SaveDestination(ctx context.Context, input services.SaveDestinationInput, actor auth.Actor) (*models.Destination, error) {
	args := m.Called(ctx, input, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Destination), args.Error(1)
}

// MockEmailTemplateService
type MockEmailTemplateService struct {
	mock.Mock
}

func (m *MockEmailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	args := m.Called(ctx, templateID, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}
func (m *MockEmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) (*models.EmailTemplate, error) {
	args := m.Called(ctx, template)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}
func (m *MockEmailTemplateService) DeleteTemplate(ctx context.Context, templateID, locale string) error {
	return m.Called(ctx, templateID, locale).Error(0)
}
