package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/db"
	"github.com/movesintl/moves-study-hub-sub001/internal/guard"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
	"github.com/movesintl/moves-study-hub-sub001/internal/workflow"
)

// OptInInput records a marketing opt-in.
type OptInInput struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	Name   string `json:"name" validate:"required,max=200"`
	Phone  string `json:"phone" validate:"max=40"`
	Source string `json:"source" validate:"required,max=60"`
}

// ConsentFilter narrows the admin consent list.
type ConsentFilter struct {
	ActiveOnly bool
	Email      string
	Page
}

// IConsentService manages marketing consent.
type IConsentService interface {
	OptIn(ctx context.Context, input OptInInput) (*models.MarketingConsent, error)
	// OptOut revokes the active consent of email. It is a no-op when none exists.
	OptOut(ctx context.Context, email string, actor string) error
	OptOutWithToken(ctx context.Context, token string) error
	// EligibleRecipients lists active consents, restricted to selectedIDs when non-nil.
	EligibleRecipients(ctx context.Context, selectedIDs []utils.SixID) ([]models.Recipient, error)
	List(ctx context.Context, filter ConsentFilter) ([]*models.MarketingConsent, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	// Reconcile opts in marketing-consenting bookings created since the given
	// time whose email has no consent row at all. It returns the number created.
	Reconcile(ctx context.Context, since time.Time) (int, error)
}

type consentService struct {
	consents store.Store[models.MarketingConsent]
	bookings store.Store[models.Booking]
	guard    guard.IUniquenessGuard
	clock    *workflow.Workflow
	secret   string
}

// NewConsentService wires the consent service and registers the active-email
// lookup with g.
func NewConsentService(consents store.Store[models.MarketingConsent], bookings store.Store[models.Booking], g *guard.Guard, clock *workflow.Workflow, jwtSecret string) IConsentService {
	g.Register(models.KindConsent, guard.LookupIn(consents, store.Eq("is_active", true)))
	return &consentService{
		consents: consents,
		bookings: bookings,
		guard:    g,
		clock:    clock,
		secret:   jwtSecret,
	}
}

func consentRetryable(err error) bool {
	return store.IsDuplicate(err) || store.IsStale(err)
}

func (s *consentService) OptIn(ctx context.Context, input OptInInput) (*models.MarketingConsent, error) {
	input.Email = models.NormalizeEmail(input.Email)
	input.Name = trimmed(input.Name)
	input.Phone = trimmed(input.Phone)
	input.Source = trimmed(input.Source)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var result *models.MarketingConsent
	// Every branch reads, then writes under the version it read. A concurrent
	// writer turns into a duplicate or stale error and the whole decision reruns.
	err := db.WithRetries(func() error {
		var err error
		result, err = s.optInOnce(ctx, input)
		return err
	}, db.DefaultMaxRetries, consentRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to opt in %s: %w", input.Email, err)
	}
	return result, nil
}

func (s *consentService) optInOnce(ctx context.Context, input OptInInput) (*models.MarketingConsent, error) {
	now := s.clock.Now()

	active, err := s.consents.FindOne(ctx, store.Eq("student_email", input.Email), store.Eq("is_active", true))
	switch {
	case err == nil:
		return s.consents.Update(ctx, active.ID, active.Version, store.Patch{
			"student_name":  input.Name,
			"student_phone": input.Phone,
			"source":        input.Source,
			"updated_at":    now,
		})
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	revoked, err := s.consents.List(ctx, store.Query{
		Filters: []store.Filter{store.Eq("student_email", input.Email)},
		Order:   []store.Order{{Field: "updated_at", Desc: true}},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(revoked) > 0 {
		return s.consents.Update(ctx, revoked[0].ID, revoked[0].Version, store.Patch{
			"student_name":  input.Name,
			"student_phone": input.Phone,
			"source":        input.Source,
			"is_active":     true,
			"consent_date":  now,
			"revoked_at":    nil,
			"updated_at":    now,
		})
	}

	consent := &models.MarketingConsent{
		StudentEmail: input.Email,
		StudentName:  input.Name,
		StudentPhone: input.Phone,
		Source:       input.Source,
		ConsentDate:  now,
		IsActive:     true,
		UpdatedAt:    now,
	}
	existing, err := guard.CreateOnce(ctx, s.guard, models.KindConsent, map[string]any{"student_email": input.Email}, s.consents, consent)
	if err != nil {
		return nil, err
	}
	if existing.AlreadyExists {
		// Someone else created the active row first; refresh it on the next attempt.
		return nil, &apperrors.Error{Kind: apperrors.ErrConflict, Message: "active consent created concurrently", Err: store.ErrDuplicate}
	}
	logger.Info().Str("consent_id", consent.ID.String()).Str("source", input.Source).Msg("marketing consent recorded")
	return consent, nil
}

func (s *consentService) OptOut(ctx context.Context, email string, actor string) error {
	email = models.NormalizeEmail(email)
	if email == "" {
		return apperrors.ValidationFields(map[string]string{"email": "is required"})
	}
	return db.WithRetries(func() error {
		active, err := s.consents.FindOne(ctx, store.Eq("student_email", email), store.Eq("is_active", true))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if _, err := s.consents.Update(ctx, active.ID, active.Version, store.Patch{
			"is_active":  false,
			"revoked_at": now,
			"updated_at": now,
		}); err != nil {
			return err
		}
		logger.Info().Str("consent_id", active.ID.String()).Str("actor", actor).Msg("marketing consent revoked")
		return nil
	}, db.DefaultMaxRetries, store.IsStale)
}

func (s *consentService) OptOutWithToken(ctx context.Context, token string) error {
	claims, err := auth.ValidatePurposeToken(token, auth.PurposeUnsubscribe, s.secret)
	if err != nil || claims.Email == "" {
		return apperrors.Validation("invalid or expired unsubscribe link")
	}
	return s.OptOut(ctx, claims.Email, "unsubscribe:"+claims.Email)
}

func (s *consentService) EligibleRecipients(ctx context.Context, selectedIDs []utils.SixID) ([]models.Recipient, error) {
	filters := []store.Filter{store.Eq("is_active", true)}
	if selectedIDs != nil {
		ids := make([]any, len(selectedIDs))
		for i, id := range selectedIDs {
			ids[i] = id
		}
		filters = append(filters, store.In("id", ids...))
	}

	consents, err := s.consents.List(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Field: "student_email"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	recipients := make([]models.Recipient, 0, len(consents))
	for _, c := range consents {
		recipients = append(recipients, models.Recipient{ConsentID: c.ID, Email: c.StudentEmail, Name: c.StudentName})
	}
	return recipients, nil
}

func (s *consentService) List(ctx context.Context, filter ConsentFilter) ([]*models.MarketingConsent, error) {
	var filters []store.Filter
	if filter.ActiveOnly {
		filters = append(filters, store.Eq("is_active", true))
	}
	if filter.Email != "" {
		filters = append(filters, store.Eq("student_email", models.NormalizeEmail(filter.Email)))
	}
	page := filter.Page.normalized()
	return s.consents.List(ctx, store.Query{
		Filters: filters,
		Order:   []store.Order{{Field: "consent_date", Desc: true}},
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

var consentCSVHeader = []string{"email", "name", "phone", "source", "consent_date"}

func (s *consentService) ExportCSV(ctx context.Context, w io.Writer) error {
	consents, err := s.consents.List(ctx, store.Query{
		Filters: []store.Filter{store.Eq("is_active", true)},
		Order:   []store.Order{{Field: "consent_date"}},
	})
	if err != nil {
		return fmt.Errorf("failed to load consents: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(consentCSVHeader); err != nil {
		return err
	}
	for _, c := range consents {
		if err := cw.Write([]string{
			c.StudentEmail,
			c.StudentName,
			c.StudentPhone,
			c.Source,
			c.ConsentDate.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *consentService) Reconcile(ctx context.Context, since time.Time) (int, error) {
	bookings, err := s.bookings.List(ctx, store.Query{
		Filters: []store.Filter{
			store.Eq("agrees_to_marketing", true),
			store.Gte("created_at", models.Timestamp(since)),
		},
		Order: []store.Order{{Field: "created_at"}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load bookings: %w", err)
	}

	created := 0
	seen := make(map[string]bool)
	for _, b := range bookings {
		if seen[b.StudentEmail] {
			continue
		}
		seen[b.StudentEmail] = true

		// Any existing row, revoked ones included, means the student already decided.
		n, err := s.consents.Count(ctx, store.Eq("student_email", b.StudentEmail))
		if err != nil {
			return created, fmt.Errorf("failed to count consents: %w", err)
		}
		if n > 0 {
			continue
		}
		if _, err := s.OptIn(ctx, OptInInput{
			Email:  b.StudentEmail,
			Name:   b.StudentName,
			Phone:  b.StudentPhone,
			Source: models.ConsentSourceReconciliation,
		}); err != nil {
			logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("failed to reconcile consent")
			continue
		}
		created++
	}
	return created, nil
}
