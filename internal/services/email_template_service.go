package services

import (
	"context"
	"fmt"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	notify.TemplateApplicationStatusChanged: {
		TemplateID: notify.TemplateApplicationStatusChanged,
		Locale:     "en-US",
		Subject:    "Your application {{.reference_code}} is now {{.status}}",
		Body:       "Hi {{.student_name}},\n\nThe status of your application {{.reference_code}} changed to {{.status}}.\n\nYou can follow it at {{.site_url}}/dashboard/applications",
	},
	notify.TemplateBookingReceived: {
		TemplateID: notify.TemplateBookingReceived,
		Locale:     "en-US",
		Subject:    "We received your counselling request {{.reference_code}}",
		Body:       "Hi {{.student_name}},\n\nThanks for booking a counselling session. A counsellor will contact you to confirm {{.preferred_date}} {{.preferred_time}}.\n\nReference: {{.reference_code}}",
	},
	notify.TemplateBookingAdminNotification: {
		TemplateID: notify.TemplateBookingAdminNotification,
		Locale:     "en-US",
		Subject:    "New counselling booking {{.reference_code}}",
		Body:       "{{.student_name}} <{{.student_email}}>, {{.student_phone}} booked a session.\nDestination: {{.preferred_destination}}\nStudy level: {{.study_level}}\nMessage: {{.message}}",
	},
	notify.TemplateAgentInvitation: {
		TemplateID: notify.TemplateAgentInvitation,
		Locale:     "en-US",
		Subject:    "You are invited to the partner portal",
		Body:       "Hi {{.contact_person}},\n\n{{.company_name}} has been invited to the partner agent portal. Activate your account here: {{.activation_link}}",
	},
	notify.TemplateCampaign: {
		TemplateID: notify.TemplateCampaign,
		Locale:     "en-US",
		Subject:    "{{.subject}}",
		Body:       "Hi {{.name}},\n\n{{.body}}\n\nUnsubscribe: {{.unsubscribe_link}}",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, template *models.EmailTemplate) (*models.EmailTemplate, error)
	DeleteTemplate(ctx context.Context, templateID, locale string) error
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	templates     store.Store[models.EmailTemplate]
	defaultLocale string
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(templates store.Store[models.EmailTemplate], defaultLocale string) *EmailTemplateService {
	if defaultLocale == "" {
		defaultLocale = "en-US"
	}
	return &EmailTemplateService{templates: templates, defaultLocale: defaultLocale}
}

// GetTemplate retrieves an email template by ID and locale, falling back to
// the default locale and then to the built-in template.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	locales := []string{locale}
	if locale != s.defaultLocale {
		locales = append(locales, s.defaultLocale)
	}
	for _, l := range locales {
		tmpl, err := s.templates.FindOne(ctx, store.Eq("template_id", templateID), store.Eq("locale", l))
		if err == nil {
			return tmpl, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}

	if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
		return &defaultTemplate, nil
	}
	return nil, apperrors.NotFound("email template", templateID+"/"+locale)
}

// SaveTemplate creates or replaces the template for its (TemplateID, Locale).
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) (*models.EmailTemplate, error) {
	if template.TemplateID == "" || template.Subject == "" || template.Body == "" {
		return nil, apperrors.Validation("template_id, subject and body are required")
	}
	if template.Locale == "" {
		template.Locale = s.defaultLocale
	}
	template.UpdatedAt = models.Timestamp(time.Now())

	existing, err := s.templates.FindOne(ctx, store.Eq("template_id", template.TemplateID), store.Eq("locale", template.Locale))
	switch {
	case err == nil:
		return s.templates.Update(ctx, existing.ID, 0, store.Patch{
			"subject":    template.Subject,
			"body":       template.Body,
			"updated_at": template.UpdatedAt,
		})
	case apperrors.Is(err, apperrors.ErrNotFound):
		if err := s.templates.Create(ctx, template); err != nil {
			return nil, fmt.Errorf("error saving template: %w", err)
		}
		return template, nil
	default:
		return nil, fmt.Errorf("error saving template: %w", err)
	}
}

// DeleteTemplate deletes an email template from the database
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string, locale string) error {
	existing, err := s.templates.FindOne(ctx, store.Eq("template_id", templateID), store.Eq("locale", locale))
	if err != nil {
		return err
	}
	return s.templates.Delete(ctx, existing.ID)
}
