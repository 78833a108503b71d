package api

import (
	"context"
	"fmt"

	"github.com/movesintl/moves-study-hub-sub001/internal/cache"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/guard"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
	"github.com/movesintl/moves-study-hub-sub001/internal/storage"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

// Services is every domain service the HTTP API and the workers share.
type Services struct {
	Applications   services.IApplicationService
	Bookings       services.IBookingService
	Consents       services.IConsentService
	Campaigns      services.ICampaignService
	Agents         services.IAgentService
	Auth           services.IAuthService
	SavedCourses   services.ISavedCourseService
	Catalog        services.ICatalogService
	History        services.IHistoryService
	EmailTemplates *services.EmailTemplateService
}

// Deps are the outside collaborators of the services. Documents and
// CatalogCache may be nil.
type Deps struct {
	Backend      store.Backend
	Gateway      notify.Gateway
	Documents    storage.IDocumentStorage
	CatalogCache cache.ICache
}

// NewServices opens one store per collection on the configured backend and
// wires the services on top of them.
func NewServices(ctx context.Context, cfg *config.Config, deps Deps) (*Services, error) {
	var err error
	fail := func(name string, e error) (*Services, error) {
		return nil, fmt.Errorf("failed to open %s store: %w", name, e)
	}

	var (
		applications store.Store[models.Application]
		bookings     store.Store[models.Booking]
		consents     store.Store[models.MarketingConsent]
		agents       store.Store[models.Agent]
		saved        store.Store[models.SavedCourse]
		courses      store.Store[models.Course]
		destinations store.Store[models.Destination]
		templates    store.Store[models.EmailTemplate]
		changes      store.Store[models.StatusChange]
	)
	if applications, err = store.Open[models.Application](ctx, deps.Backend, store.Applications); err != nil {
		return fail(store.Applications.Name, err)
	}
	if bookings, err = store.Open[models.Booking](ctx, deps.Backend, store.Bookings); err != nil {
		return fail(store.Bookings.Name, err)
	}
	if consents, err = store.Open[models.MarketingConsent](ctx, deps.Backend, store.MarketingConsents); err != nil {
		return fail(store.MarketingConsents.Name, err)
	}
	if agents, err = store.Open[models.Agent](ctx, deps.Backend, store.Agents); err != nil {
		return fail(store.Agents.Name, err)
	}
	if saved, err = store.Open[models.SavedCourse](ctx, deps.Backend, store.SavedCourses); err != nil {
		return fail(store.SavedCourses.Name, err)
	}
	if courses, err = store.Open[models.Course](ctx, deps.Backend, store.Courses); err != nil {
		return fail(store.Courses.Name, err)
	}
	if destinations, err = store.Open[models.Destination](ctx, deps.Backend, store.Destinations); err != nil {
		return fail(store.Destinations.Name, err)
	}
	if templates, err = store.Open[models.EmailTemplate](ctx, deps.Backend, store.EmailTemplates); err != nil {
		return fail(store.EmailTemplates.Name, err)
	}
	if changes, err = store.Open[models.StatusChange](ctx, deps.Backend, store.StatusChanges); err != nil {
		return fail(store.StatusChanges.Name, err)
	}

	wf := workflow.New()
	g := guard.New()

	s := &Services{}
	s.Catalog = services.NewCatalogService(courses, destinations, deps.CatalogCache, cfg.CatalogCacheTTL)
	s.History = services.NewHistoryService(changes)
	s.Consents = services.NewConsentService(consents, bookings, g, wf, cfg.JwtSecret)
	s.Applications = services.NewApplicationService(applications, s.Catalog, wf, s.History, deps.Gateway, deps.Documents,
		services.DocumentPolicy{
			MaxSizeBytes: int64(cfg.DocumentMaxSizeMB) << 20,
			MimeTypes:    cfg.DocumentMimeTypes,
		},
		cfg.PublicSiteURL,
	)
	s.Bookings = services.NewBookingService(bookings, s.Catalog, s.Consents, wf, s.History, deps.Gateway, cfg.AdminNotifyEmail)
	s.Agents = services.NewAgentService(agents, wf, s.History, deps.Gateway, services.AgentConfig{
		JwtSecret: cfg.JwtSecret,
		InviteTTL: cfg.AgentInviteTTL,
		SiteURL:   cfg.PublicSiteURL,
	})
	s.Auth = services.NewAuthService(s.Agents, services.AuthConfig{
		JwtSecret:         cfg.JwtSecret,
		TokenTTL:          cfg.JwtTTL,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})
	s.SavedCourses = services.NewSavedCourseService(saved, s.Catalog, g)
	s.Campaigns = services.NewCampaignService(s.Consents, deps.Gateway)
	s.EmailTemplates = services.NewEmailTemplateService(templates, cfg.DefaultLocale)
	return s, nil
}
