// Package notify hands outgoing email to the background workers. Services
// call a Gateway; delivery itself happens in internal/tasks.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
)

// Task types processed by the background worker.
const (
	TypeEmailDelivery    = "email:deliver"
	TypeCampaignDelivery = "campaign:deliver"
	TypeConsentReconcile = "consent:reconcile"
)

// Email templates known to the system. Each has a built-in default.
const (
	TemplateApplicationStatusChanged = "application_status_changed"
	TemplateBookingReceived          = "booking_received"
	TemplateBookingAdminNotification = "booking_admin_notification"
	TemplateAgentInvitation          = "agent_invitation"
	TemplateCampaign                 = "campaign"
)

// dedupRetention is how long a delivered email keeps its task ID reserved.
const dedupRetention = 24 * time.Hour

// EmailTaskPayload is the payload of TypeEmailDelivery. A non-empty DedupKey
// becomes the task ID, so the same key is queued at most once.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
	DedupKey   string                 `json:"dedup_key,omitempty"`
}

// CampaignTaskPayload is the payload of TypeCampaignDelivery.
type CampaignTaskPayload struct {
	ID         string             `json:"id"`
	Subject    string             `json:"subject"`
	Body       string             `json:"body"`
	Recipients []models.Recipient `json:"recipients"`
	Actor      string             `json:"actor"`
}

// Gateway is the outbound notification boundary.
type Gateway interface {
	SendEmail(ctx context.Context, msg EmailTaskPayload) error
	SendCampaign(ctx context.Context, campaign CampaignTaskPayload) error
}

// IAsynqClient is the part of *asynq.Client the gateway uses.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqGateway enqueues notifications as asynq tasks.
type AsynqGateway struct {
	client IAsynqClient
}

// NewAsynqGateway returns a Gateway backed by client.
func NewAsynqGateway(client IAsynqClient) *AsynqGateway {
	return &AsynqGateway{client: client}
}

func (g *AsynqGateway) SendEmail(ctx context.Context, msg EmailTaskPayload) error {
	if msg.To == "" || msg.TemplateID == "" {
		return apperrors.Validation("email needs a recipient and a template")
	}
	opts := []asynq.Option{asynq.Queue("critical"), asynq.MaxRetry(5)}
	if msg.DedupKey != "" {
		opts = append(opts, asynq.TaskID(msg.DedupKey), asynq.Retention(dedupRetention))
	}
	return g.enqueue(ctx, TypeEmailDelivery, msg, opts...)
}

func (g *AsynqGateway) SendCampaign(ctx context.Context, campaign CampaignTaskPayload) error {
	if len(campaign.Recipients) == 0 {
		return apperrors.Validation("campaign has no recipients")
	}
	return g.enqueue(ctx, TypeCampaignDelivery, campaign, asynq.Queue("low"), asynq.MaxRetry(3))
}

func (g *AsynqGateway) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	if _, err := g.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Queued by an earlier attempt.
			return nil
		}
		return apperrors.Upstream("email queue", err)
	}
	return nil
}
