package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/movesintl/moves-study-hub-sub001/internal/api/handlers"
	"github.com/movesintl/moves-study-hub-sub001/internal/api/middleware"
	"github.com/movesintl/moves-study-hub-sub001/internal/captcha"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/email"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// Tighter buckets for the public forms.
var formLimits = middleware.RouteLimits{
	Soft: middleware.Bucket{Size: 3, Refill: 1},
	Hard: middleware.Bucket{Size: 10, Refill: 1},
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svcs *Services, verifier captcha.IVerifier) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	rateLimiter.SetRouteLimits("/v1/bookings", formLimits)
	rateLimiter.SetRouteLimits("/v1/auth/login", formLimits)
	rateLimiter.SetRouteLimits("/v1/consents", formLimits)

	// Order matters: the limiter reads the captcha outcome.
	r.Use(middleware.CORSMiddleware(cfg.PublicSiteURL))
	r.Use(middleware.CaptchaMiddleware(cfg, verifier))
	r.Use(rateLimiter.Limit())

	applicationHandler := handlers.NewRestApplicationHandler(svcs.Applications)
	bookingHandler := handlers.NewRestBookingHandler(svcs.Bookings)
	consentHandler := handlers.NewRestConsentHandler(svcs.Consents, svcs.Campaigns)
	agentHandler := handlers.NewRestAgentHandler(svcs.Agents, svcs.Auth)
	savedHandler := handlers.NewRestSavedCourseHandler(svcs.SavedCourses)
	catalogHandler := handlers.NewRestCatalogHandler(svcs.Catalog, svcs.EmailTemplates)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public routes. Bookings may be made by signed-in students too.
		v1.POST("/auth/login", agentHandler.Login)
		v1.POST("/agents/activate", agentHandler.Activate)
		v1.GET("/courses", catalogHandler.ListCourses)
		v1.GET("/courses/:id", catalogHandler.GetCourse)
		v1.GET("/destinations", catalogHandler.ListDestinations)
		v1.POST("/bookings", middleware.OptionalAuthMiddleware(cfg.JwtSecret), bookingHandler.Create)
		v1.POST("/consents", consentHandler.OptIn)
		v1.POST("/consents/unsubscribe", consentHandler.Unsubscribe)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/applications", applicationHandler.Submit)
			authRequired.GET("/applications/mine", applicationHandler.ListMine)
			authRequired.GET("/applications/:id", applicationHandler.Get)
			authRequired.PATCH("/applications/:id", applicationHandler.Edit)
			authRequired.POST("/applications/:id/withdraw", applicationHandler.Withdraw)
			authRequired.POST("/applications/:id/documents", applicationHandler.RequestDocumentUpload)

			authRequired.GET("/bookings/mine", bookingHandler.ListMine)

			authRequired.GET("/saved-courses", savedHandler.List)
			authRequired.POST("/saved-courses/:courseId/toggle", savedHandler.Toggle)
			authRequired.PUT("/saved-courses/:courseId", savedHandler.Save)
			authRequired.DELETE("/saved-courses/:courseId", savedHandler.Remove)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.GET("/applications", applicationHandler.ListAll)
			adminRequired.GET("/applications/:id", applicationHandler.Get)
			adminRequired.PUT("/applications/:id/status", applicationHandler.UpdateStatus)
			adminRequired.GET("/applications/:id/history", applicationHandler.History)

			adminRequired.GET("/bookings", bookingHandler.ListAll)
			adminRequired.GET("/bookings/:id", bookingHandler.Get)
			adminRequired.PATCH("/bookings/:id", bookingHandler.UpdateStatus)
			adminRequired.GET("/bookings/:id/history", bookingHandler.History)

			adminRequired.GET("/consents", consentHandler.List)
			adminRequired.GET("/consents/export", consentHandler.ExportCSV)
			adminRequired.POST("/consents/opt-out", consentHandler.OptOut)
			adminRequired.POST("/campaigns", consentHandler.SendCampaign)

			adminRequired.GET("/agents", agentHandler.List)
			adminRequired.POST("/agents", agentHandler.Invite)
			adminRequired.GET("/agents/:id", agentHandler.Get)
			adminRequired.PATCH("/agents/:id", agentHandler.Update)
			adminRequired.PUT("/agents/:id/active", agentHandler.SetActive)
			adminRequired.POST("/agents/:id/resend-invitation", agentHandler.ResendInvitation)
			adminRequired.DELETE("/agents/:id", agentHandler.Delete)

			adminRequired.POST("/courses", catalogHandler.SaveCourse)
			adminRequired.PUT("/courses/:id", catalogHandler.SaveCourse)
			adminRequired.POST("/destinations", catalogHandler.SaveDestination)
			adminRequired.PUT("/destinations/:id", catalogHandler.SaveDestination)
			adminRequired.PUT("/email-templates/:templateId", catalogHandler.SaveEmailTemplate)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine. rdb backs
// getTestEmail and may be nil when MOCK_SERVICES is off.
func SetupServiceRouter(cfg *config.Config, rdb redis.Cmdable, shutdownChan chan<- struct{}) *gin.Engine {
	log := logger.Component("service-api")
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info().Msg("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn().Msg("shutdown already signalled")
			}

		case "getTestEmail":
			if rdb == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Mock mailbox is not enabled"})
				return
			}
			var args []string // [templateID, email]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [templateId, email]"})
				return
			}
			key := email.MockMailKey(args[1], args[0])

			raw, found, err := pollMockMail(c.Request.Context(), rdb, key)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("failed to read mock mailbox")
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", key)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal(raw, &emailData); err != nil {
				log.Error().Err(err).Str("key", key).Msg("stored test email is not valid JSON")
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// pollMockMail waits up to two seconds for key to appear, then consumes it.
// Emails are delivered by the worker, so a test usually asks before the
// message lands.
func pollMockMail(ctx context.Context, rdb redis.Cmdable, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		raw, err := rdb.Get(ctx, key).Bytes()
		if err == nil {
			rdb.Del(ctx, key)
			return raw, true, nil
		}
		if !errors.Is(err, redis.Nil) {
			return nil, false, err
		}
		select {
		case <-ctx.Done():
			return nil, false, nil
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil, false, nil
}
