package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/guard"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/storage"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

const testSecret = "test-secret"

var (
	admin   = auth.Actor{UserID: "admin", Email: "admin@studyhub.test", Role: auth.RoleAdmin}
	student = auth.Actor{UserID: "student-1", Email: "asha@example.com", Role: auth.RoleStudent}
	visitor = auth.Actor{}
)

// MockGateway is a mock for notify.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendEmail(ctx context.Context, msg notify.EmailTaskPayload) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockGateway) SendCampaign(ctx context.Context, campaign notify.CampaignTaskPayload) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

// MockDocumentStorage is a mock for storage.IDocumentStorage
type MockDocumentStorage struct {
	mock.Mock
}

func (m *MockDocumentStorage) PresignDocumentUpload(ctx context.Context, applicationID, filename, contentType string, size int64) (*storage.PresignedUpload, error) {
	args := m.Called(ctx, applicationID, filename, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PresignedUpload), args.Error(1)
}

// testEnv wires every service on memory stores with a fixed clock.
type testEnv struct {
	now time.Time

	applicationStore store.Store[models.Application]
	bookingStore     store.Store[models.Booking]
	consentStore     store.Store[models.MarketingConsent]
	agentStore       store.Store[models.Agent]
	savedStore       store.Store[models.SavedCourse]
	courseStore      store.Store[models.Course]
	destinationStore store.Store[models.Destination]
	historyStore     store.Store[models.StatusChange]

	gateway   *MockGateway
	documents *MockDocumentStorage

	catalog      ICatalogService
	history      IHistoryService
	applications IApplicationService
	bookings     IBookingService
	consents     IConsentService
	agents       IAgentService
	saved        ISavedCourseService
	campaigns    ICampaignService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		now:              time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		applicationStore: store.NewMemoryStore[models.Application](store.Applications),
		bookingStore:     store.NewMemoryStore[models.Booking](store.Bookings),
		consentStore:     store.NewMemoryStore[models.MarketingConsent](store.MarketingConsents),
		agentStore:       store.NewMemoryStore[models.Agent](store.Agents),
		savedStore:       store.NewMemoryStore[models.SavedCourse](store.SavedCourses),
		courseStore:      store.NewMemoryStore[models.Course](store.Courses),
		destinationStore: store.NewMemoryStore[models.Destination](store.Destinations),
		historyStore:     store.NewMemoryStore[models.StatusChange](store.StatusChanges),
		gateway:          new(MockGateway),
		documents:        new(MockDocumentStorage),
	}

	wf := workflow.NewWithClock(func() time.Time { return e.now })
	g := guard.New()

	e.catalog = NewCatalogService(e.courseStore, e.destinationStore, nil, 0)
	e.history = NewHistoryService(e.historyStore)
	e.consents = NewConsentService(e.consentStore, e.bookingStore, g, wf, testSecret)
	e.applications = NewApplicationService(e.applicationStore, e.catalog, wf, e.history, e.gateway, e.documents,
		DocumentPolicy{MaxSizeBytes: 5 << 20, MimeTypes: []string{"application/pdf", "image/jpeg"}}, "https://studyhub.test")
	e.bookings = NewBookingService(e.bookingStore, e.catalog, e.consents, wf, e.history, e.gateway, "team@studyhub.test")
	e.agents = NewAgentService(e.agentStore, wf, e.history, e.gateway, AgentConfig{JwtSecret: testSecret, InviteTTL: time.Hour, SiteURL: "https://studyhub.test"})
	e.saved = NewSavedCourseService(e.savedStore, e.catalog, g)
	e.campaigns = NewCampaignService(e.consents, e.gateway)
	return e
}

// quietGateway accepts every notification.
func (e *testEnv) quietGateway() {
	e.gateway.On("SendEmail", mock.Anything, mock.Anything).Return(nil)
}

func (e *testEnv) seedDestination(t *testing.T, name, slug string) *models.Destination {
	t.Helper()
	d := &models.Destination{Name: name, Slug: slug, CreatedAt: e.now, UpdatedAt: e.now}
	if err := e.destinationStore.Create(context.Background(), d); err != nil {
		t.Fatalf("seed destination: %v", err)
	}
	return d
}

func (e *testEnv) seedCourse(t *testing.T, title string, dest *models.Destination) *models.Course {
	t.Helper()
	c := &models.Course{Title: title, Slug: title, IsPublished: true, CreatedAt: e.now, UpdatedAt: e.now}
	if dest != nil {
		c.DestinationID = &dest.ID
	}
	if err := e.courseStore.Create(context.Background(), c); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return c
}
