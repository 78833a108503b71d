package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/config"
	"github.com/movesintl/moves-study-hub-sub001/internal/email"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
)

// TemplateSource resolves a template for a locale, falling back to defaults.
type TemplateSource interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

// ConsentReconciler opts in marketing-consenting bookers with no consent row.
type ConsentReconciler interface {
	Reconcile(ctx context.Context, since time.Time) (int, error)
}

// TaskProcessor holds dependencies for task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	templates   TemplateSource
	consents    ConsentReconciler
	gateway     notify.Gateway
	now         func() time.Time
}

// NewTaskProcessor creates a new task processor. The gateway is used by the
// campaign handler to fan out one email task per recipient.
func NewTaskProcessor(cfg *config.Config, sender email.Sender, templates TemplateSource, consents ConsentReconciler, gateway notify.Gateway) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: sender,
		templates:   templates,
		consents:    consents,
		gateway:     gateway,
		now:         time.Now,
	}
}

// RedisOpt builds the asynq connection options from config.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewClient returns an asynq client for enqueueing tasks.
func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// NewServeMux registers every handler of the background worker.
func NewServeMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(notify.TypeCampaignDelivery, processor.HandleCampaignTask)
	mux.HandleFunc(notify.TypeConsentReconcile, processor.HandleConsentReconcileTask)
	return mux
}

// SetupServer starts the asynq worker in the background. Stop it with
// Shutdown.
func SetupServer(cfg *config.Config, processor *TaskProcessor) (*asynq.Server, error) {
	log := logger.Component("tasks")
	srv := asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error().Err(err).
					Str("type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	if err := srv.Start(NewServeMux(processor)); err != nil {
		return nil, fmt.Errorf("could not start asynq server: %w", err)
	}
	log.Info().Msg("background task server started")
	return srv, nil
}

// SetupScheduler registers the periodic consent reconciliation and starts
// the scheduler.
func SetupScheduler(cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{Location: time.UTC})
	task := asynq.NewTask(notify.TypeConsentReconcile, nil)
	entryID, err := scheduler.Register(cfg.ReconcileCronSpec, task, asynq.Queue("low"), asynq.Unique(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to register %s on %q: %w", notify.TypeConsentReconcile, cfg.ReconcileCronSpec, err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("could not start asynq scheduler: %w", err)
	}
	logger.Info().Str("entry_id", entryID).Str("spec", cfg.ReconcileCronSpec).Msg("consent reconciliation scheduled")
	return scheduler, nil
}

// --- Task Handlers ---

// HandleEmailDeliveryTask renders a template and sends the message.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload notify.EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	log := logger.WithField("template", payload.TemplateID)

	locale := payload.Locale
	if locale == "" {
		locale = p.cfg.DefaultLocale
	}

	tmpl, err := p.templates.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		log.Warn().Err(err).Str("locale", locale).Msg("email template unavailable")
		return fmt.Errorf("email template %s not found: %w", payload.TemplateID, asynq.SkipRetry)
	}

	subject := render(tmpl.Subject, payload.Data)
	body := render(tmpl.Body, payload.Data)
	raw := p.buildMessage(payload.To, payload.TemplateID, subject, body)

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, raw); err != nil {
		log.Warn().Err(err).Msg("email sending failed")
		return err
	}
	log.Debug().Msg("email delivered")
	return nil
}

// HandleCampaignTask enqueues one email per recipient, each with its own
// unsubscribe link. Emails are keyed by campaign and consent, so a redelivered
// campaign never queues the same recipient twice. Recipients whose email could
// not be queued are handed back as a smaller campaign.
func (p *TaskProcessor) HandleCampaignTask(ctx context.Context, t *asynq.Task) error {
	var payload notify.CampaignTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal campaign task payload: %v: %w", err, asynq.SkipRetry)
	}
	log := logger.WithField("campaign_id", payload.ID)

	var (
		failed []models.Recipient
		errs   []error
	)
	for _, r := range payload.Recipients {
		token, err := auth.GeneratePurposeToken(auth.PurposeUnsubscribe, r.ConsentID.String(), r.Email, p.cfg.JwtSecret, p.cfg.UnsubscribeLinkTTL)
		if err != nil {
			return fmt.Errorf("failed to sign unsubscribe link: %v: %w", err, asynq.SkipRetry)
		}
		msg := notify.EmailTaskPayload{
			To:         r.Email,
			TemplateID: notify.TemplateCampaign,
			Data: map[string]interface{}{
				"subject":          payload.Subject,
				"body":             payload.Body,
				"name":             r.Name,
				"unsubscribe_link": p.cfg.PublicSiteURL + "/unsubscribe?token=" + url.QueryEscape(token),
			},
		}
		if payload.ID != "" {
			msg.DedupKey = "campaign:" + payload.ID + ":" + r.ConsentID.String()
		}
		if err := p.gateway.SendEmail(ctx, msg); err != nil {
			failed = append(failed, r)
			errs = append(errs, fmt.Errorf("%s: %w", r.Email, err))
		}
	}

	log.Info().
		Str("actor", payload.Actor).
		Int("recipients", len(payload.Recipients)).
		Int("failed", len(failed)).
		Msg("campaign fanned out")
	if len(failed) == 0 {
		return nil
	}

	retry := payload
	retry.Recipients = failed
	if err := p.gateway.SendCampaign(ctx, retry); err != nil {
		errs = append(errs, err)
		return fmt.Errorf("campaign enqueue failed for %d of %d recipients: %w", len(failed), len(payload.Recipients), errors.Join(errs...))
	}
	log.Warn().Err(errors.Join(errs...)).Int("requeued", len(failed)).Msg("requeued campaign recipients")
	return nil
}

// HandleConsentReconcileTask backfills consent rows from recent bookings.
func (p *TaskProcessor) HandleConsentReconcileTask(ctx context.Context, t *asynq.Task) error {
	since := p.now().Add(-p.cfg.ReconcileLookback)
	n, err := p.consents.Reconcile(ctx, since)
	if err != nil {
		return fmt.Errorf("consent reconciliation failed: %w", err)
	}
	logger.Info().Time("since", since).Int("opted_in", n).Msg("consent reconciliation finished")
	return nil
}

// render replaces {{.key}} placeholders with the matching data values.
func render(text string, data map[string]interface{}) string {
	for key, val := range data {
		text = strings.ReplaceAll(text, "{{."+key+"}}", fmt.Sprintf("%v", val))
	}
	return text
}

func (p *TaskProcessor) buildMessage(to, templateID, subject, body string) []byte {
	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = "noreply@example.com"
	}

	var sb strings.Builder
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + p.now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString(email.TemplateHeader + ": " + templateID + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
