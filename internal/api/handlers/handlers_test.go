package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/handlers"
	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

var (
	student = auth.Actor{UserID: "student-1", Email: "asha@example.com", Role: auth.RoleStudent}
	admin   = auth.Actor{UserID: "admin", Email: "admin@studyhub.test", Role: auth.RoleAdmin}
)

// newEngine returns a test engine whose requests run as actor. When
// captchaErr or human are set they stand in for CaptchaMiddleware.
func newEngine(actor auth.Actor, human bool, captchaErr error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyActor, actor)
		c.Set(middleware.ContextKeyIsHumanVerified, human)
		if captchaErr != nil {
			c.Set(middleware.ContextKeyCaptchaError, captchaErr)
		}
		c.Next()
	})
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// --- Bookings ---

func TestCreateBooking_PassesCaptchaOutcome(t *testing.T) {
	svc := new(MockBookingService)
	h := handlers.NewRestBookingHandler(svc)
	r := newEngine(auth.Actor{}, true, nil)
	r.POST("/v1/bookings", h.Create)

	input := services.CreateBookingInput{StudentName: "Asha Gurung", StudentEmail: "asha@example.com", StudentPhone: "+977", AgreesToTerms: true}
	svc.On("Create", mock.Anything, input, true, auth.Actor{}).
		Return(&models.Booking{ReferenceCode: "BK-1", StudentEmail: "asha@example.com"}, nil).Once()

	w := doJSON(r, http.MethodPost, "/v1/bookings", input)
	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "BK-1", data["reference_code"])
	svc.AssertExpectations(t)
}

func TestCreateBooking_CaptchaUnavailable(t *testing.T) {
	svc := new(MockBookingService)
	h := handlers.NewRestBookingHandler(svc)
	r := newEngine(auth.Actor{}, false, errors.New("timeout"))
	r.POST("/v1/bookings", h.Create)

	w := doJSON(r, http.MethodPost, "/v1/bookings", services.CreateBookingInput{StudentEmail: "a@b.com"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "upstream_unavailable", decode(t, w)["code"])
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_ValidationFields(t *testing.T) {
	svc := new(MockBookingService)
	h := handlers.NewRestBookingHandler(svc)
	r := newEngine(auth.Actor{}, true, nil)
	r.POST("/v1/bookings", h.Create)

	svc.On("Create", mock.Anything, mock.Anything, true, mock.Anything).
		Return(nil, apperrors.ValidationFields(map[string]string{"agrees_to_terms": "must be accepted"}))

	w := doJSON(r, http.MethodPost, "/v1/bookings", services.CreateBookingInput{StudentEmail: "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["code"])
	assert.Contains(t, body["fields"], "agrees_to_terms")
}

func TestUpdateBookingStatus_Conflict(t *testing.T) {
	svc := new(MockBookingService)
	h := handlers.NewRestBookingHandler(svc)
	r := newEngine(admin, false, nil)
	r.PATCH("/v1/admin/bookings/:id", h.UpdateStatus)

	id := utils.NewSixID()
	status := string(models.BookingConfirmed)
	svc.On("UpdateStatus", mock.Anything, id, services.BookingStatusInput{Version: 1, Status: &status}, admin).
		Return(nil, apperrors.Conflict("booking was modified concurrently"))

	w := doJSON(r, http.MethodPatch, "/v1/admin/bookings/"+id.String(), map[string]interface{}{"version": 1, "status": status})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode(t, w)["code"])
}

// --- Applications ---

func TestApplicationRoutes(t *testing.T) {
	svc := new(MockApplicationService)
	h := handlers.NewRestApplicationHandler(svc)
	r := newEngine(student, false, nil)
	r.POST("/v1/applications/:id/withdraw", h.Withdraw)
	r.GET("/v1/applications/mine", h.ListMine)
	r.PUT("/v1/admin/applications/:id/status", h.UpdateStatus)

	w := doJSON(r, http.MethodPost, "/v1/applications/not-an-id/withdraw", map[string]int{"version": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "id")

	id := utils.NewSixID()
	svc.On("Withdraw", mock.Anything, id, int64(2), student).Return(&models.Application{Status: models.ApplicationWithdrawn}, nil)
	w = doJSON(r, http.MethodPost, "/v1/applications/"+id.String()+"/withdraw", map[string]int{"version": 2})
	assert.Equal(t, http.StatusOK, w.Code)

	svc.On("ListForStudent", mock.Anything, student, services.Page{Limit: 10}).Return([]*models.Application{{ReferenceCode: "APP-1"}}, nil)
	w = doJSON(r, http.MethodGet, "/v1/applications/mine?limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	svc.On("UpdateStatus", mock.Anything, id, mock.Anything, student).
		Return(nil, apperrors.IllegalTransition("application", string(models.ApplicationApproved), string(models.ApplicationUnderReview)))
	w = doJSON(r, http.MethodPut, "/v1/admin/applications/"+id.String()+"/status", map[string]interface{}{"version": 3, "status": "under_review"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "illegal_transition", decode(t, w)["code"])
}

func TestApplicationSubmit_InternalErrorHidden(t *testing.T) {
	svc := new(MockApplicationService)
	h := handlers.NewRestApplicationHandler(svc)
	r := newEngine(student, false, nil)
	r.POST("/v1/applications", h.Submit)

	svc.On("Submit", mock.Anything, mock.Anything, student).Return(nil, errors.New("pq: connection reset"))
	w := doJSON(r, http.MethodPost, "/v1/applications", map[string]string{"student_name": "Asha"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])

	w = doJSON(r, http.MethodPost, "/v1/applications", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Consents and campaigns ---

func TestConsentOptIn_ForcesNewsletterSource(t *testing.T) {
	svc := new(MockConsentService)
	h := handlers.NewRestConsentHandler(svc, new(MockCampaignService))
	r := newEngine(auth.Actor{}, true, nil)
	r.POST("/v1/consents", h.OptIn)

	svc.On("OptIn", mock.Anything, services.OptInInput{Email: "a@b.com", Name: "A", Source: models.ConsentSourceNewsletter}).
		Return(&models.MarketingConsent{StudentEmail: "a@b.com", StudentPhone: "+61 400 000 000", IsActive: true}, nil).Once()

	w := doJSON(r, http.MethodPost, "/v1/consents", map[string]string{"email": "a@b.com", "name": "A", "source": "admin"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	svc.AssertExpectations(t)
}

func TestConsentOptIn_RequiresHuman(t *testing.T) {
	svc := new(MockConsentService)
	h := handlers.NewRestConsentHandler(svc, new(MockCampaignService))
	body := map[string]string{"email": "a@b.com", "name": "Someone Else"}

	r := newEngine(auth.Actor{}, false, nil)
	r.POST("/v1/consents", h.OptIn)
	w := doJSON(r, http.MethodPost, "/v1/consents", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["code"])

	r = newEngine(auth.Actor{}, false, errors.New("siteverify timeout"))
	r.POST("/v1/consents", h.OptIn)
	w = doJSON(r, http.MethodPost, "/v1/consents", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.AssertNotCalled(t, "OptIn", mock.Anything, mock.Anything)
}

func TestConsentUnsubscribeAndOptOut(t *testing.T) {
	svc := new(MockConsentService)
	h := handlers.NewRestConsentHandler(svc, new(MockCampaignService))
	r := newEngine(admin, false, nil)
	r.POST("/v1/consents/unsubscribe", h.Unsubscribe)
	r.POST("/v1/admin/consents/opt-out", h.OptOut)

	svc.On("OptOutWithToken", mock.Anything, "bad").Return(apperrors.Validation("invalid unsubscribe link"))
	svc.On("OptOutWithToken", mock.Anything, "good").Return(nil)
	svc.On("OptOut", mock.Anything, "a@b.com", "admin:admin@studyhub.test").Return(nil)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/v1/consents/unsubscribe", map[string]string{"token": "bad"}).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodPost, "/v1/consents/unsubscribe", map[string]string{"token": "good"}).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodPost, "/v1/admin/consents/opt-out", map[string]string{"email": "a@b.com"}).Code)
	svc.AssertExpectations(t)
}

func TestConsentExportCSV(t *testing.T) {
	svc := new(MockConsentService)
	h := handlers.NewRestConsentHandler(svc, new(MockCampaignService))
	r := newEngine(admin, false, nil)
	r.GET("/v1/admin/consents/export", h.ExportCSV)

	svc.On("ExportCSV", mock.Anything, mock.Anything).Return(func(w io.Writer) error {
		_, err := io.WriteString(w, "email,name,phone,source,consent_date\n")
		return err
	})

	w := doJSON(r, http.MethodGet, "/v1/admin/consents/export", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "marketing-consents-")
	assert.Equal(t, "email,name,phone,source,consent_date\n", w.Body.String())
}

func TestSendCampaign(t *testing.T) {
	campaigns := new(MockCampaignService)
	h := handlers.NewRestConsentHandler(new(MockConsentService), campaigns)
	r := newEngine(admin, false, nil)
	r.POST("/v1/admin/campaigns", h.SendCampaign)

	campaigns.On("Send", mock.Anything, services.SendCampaignInput{Subject: "Hi", Body: "News"}, admin).
		Return(&services.CampaignResult{Recipients: 3}, nil)

	w := doJSON(r, http.MethodPost, "/v1/admin/campaigns", map[string]string{"subject": "Hi", "body": "News"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["data"].(map[string]interface{})["recipients"])
}

// --- Agents ---

func TestAgentResponsesAreRedacted(t *testing.T) {
	agents := new(MockAgentService)
	h := handlers.NewRestAgentHandler(agents, new(MockAuthService))
	r := newEngine(admin, false, nil)
	r.GET("/v1/admin/agents", h.List)
	r.POST("/v1/agents/activate", h.Activate)

	agents.On("List", mock.Anything, services.Page{}).Return([]*models.Agent{{Email: "a@b.com", PasswordHash: "$2a$secret"}}, nil)
	agents.On("Activate", mock.Anything, mock.Anything).Return(&models.Agent{Email: "a@b.com", PasswordHash: "$2a$secret", IsActive: true}, nil)

	w := doJSON(r, http.MethodGet, "/v1/admin/agents", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = doJSON(r, http.MethodPost, "/v1/agents/activate", map[string]string{"email": "a@b.com", "token": "t", "password": "long enough pw"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestAgentAdminRoutes(t *testing.T) {
	agents := new(MockAgentService)
	h := handlers.NewRestAgentHandler(agents, new(MockAuthService))
	r := newEngine(admin, false, nil)
	r.POST("/v1/admin/agents", h.Invite)
	r.PUT("/v1/admin/agents/:id/active", h.SetActive)
	r.DELETE("/v1/admin/agents/:id", h.Delete)

	agents.On("Invite", mock.Anything, mock.Anything, admin).Return(nil, apperrors.Conflict("an agent with email a@b.com already exists"))
	w := doJSON(r, http.MethodPost, "/v1/admin/agents", map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	id := utils.NewSixID()
	agents.On("SetActive", mock.Anything, id, int64(4), false, admin).Return(&models.Agent{IsActive: false}, nil).Once()
	w = doJSON(r, http.MethodPut, "/v1/admin/agents/"+id.String()+"/active", map[string]interface{}{"version": 4, "active": false})
	assert.Equal(t, http.StatusOK, w.Code)

	agents.On("Delete", mock.Anything, id, admin).Return(nil).Once()
	w = doJSON(r, http.MethodDelete, "/v1/admin/agents/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	agents.AssertExpectations(t)
}

func TestLogin(t *testing.T) {
	authSvc := new(MockAuthService)
	h := handlers.NewRestAgentHandler(new(MockAgentService), authSvc)
	r := newEngine(auth.Actor{}, false, nil)
	r.POST("/v1/auth/login", h.Login)

	authSvc.On("Login", mock.Anything, services.LoginInput{Email: "a@b.com", Password: "wrong"}).Return(nil, apperrors.Unauthorized("invalid email or password"))
	authSvc.On("Login", mock.Anything, services.LoginInput{Email: "a@b.com", Password: "right"}).Return(&services.LoginResult{Token: "jwt", Role: auth.RoleAgent}, nil)

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/v1/auth/login", services.LoginInput{Email: "a@b.com", Password: "wrong"}).Code)
	w := doJSON(r, http.MethodPost, "/v1/auth/login", services.LoginInput{Email: "a@b.com", Password: "right"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jwt", decode(t, w)["data"].(map[string]interface{})["token"])
}

// --- Saved courses and catalog ---

func TestSavedCourseToggle(t *testing.T) {
	saved := new(MockSavedCourseService)
	h := handlers.NewRestSavedCourseHandler(saved)
	r := newEngine(student, false, nil)
	r.POST("/v1/saved-courses/:courseId/toggle", h.Toggle)
	r.DELETE("/v1/saved-courses/:courseId", h.Remove)

	courseID := utils.NewSixID()
	saved.On("Toggle", mock.Anything, courseID, student).Return(true, nil).Once()
	w := doJSON(r, http.MethodPost, "/v1/saved-courses/"+courseID.String()+"/toggle", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["data"].(map[string]interface{})["saved"])

	saved.On("Remove", mock.Anything, courseID, student).Return(nil).Once()
	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/v1/saved-courses/"+courseID.String(), nil).Code)
}

func TestListCourses_ByDestination(t *testing.T) {
	catalog := new(MockCatalogService)
	h := handlers.NewRestCatalogHandler(catalog, new(MockEmailTemplateService))
	r := newEngine(auth.Actor{}, false, nil)
	r.GET("/v1/courses", h.ListCourses)

	dest := &models.Destination{Name: "Australia", Slug: "australia"}
	dest.ID = utils.NewSixID()
	catalog.On("ResolveDestination", mock.Anything, "australia").Return(dest, nil)
	catalog.On("ResolveDestination", mock.Anything, "mars").Return(nil, apperrors.NotFound("destination", "mars"))
	catalog.On("ListCourses", mock.Anything, services.CourseFilter{DestinationID: &dest.ID, StudyLevel: "postgraduate"}).
		Return([]*models.Course{{Title: "MSc Data Science"}}, nil)

	w := doJSON(r, http.MethodGet, "/v1/courses?destination=australia&level=postgraduate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = doJSON(r, http.MethodGet, "/v1/courses?destination=mars", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveEmailTemplate(t *testing.T) {
	templates := new(MockEmailTemplateService)
	h := handlers.NewRestCatalogHandler(new(MockCatalogService), templates)
	r := newEngine(admin, false, nil)
	r.PUT("/v1/admin/email-templates/:templateId", h.SaveEmailTemplate)

	templates.On("SaveTemplate", mock.Anything, mock.MatchedBy(func(tmpl *models.EmailTemplate) bool {
		return tmpl.TemplateID == "booking_received" && tmpl.Subject == "Thanks" && tmpl.ID.IsZero()
	})).Return(&models.EmailTemplate{TemplateID: "booking_received", Subject: "Thanks"}, nil)

	w := doJSON(r, http.MethodPut, "/v1/admin/email-templates/booking_received", map[string]string{"id": "ignored", "subject": "Thanks", "body": "Body"})
	assert.Equal(t, http.StatusOK, w.Code)
	templates.AssertExpectations(t)
}
