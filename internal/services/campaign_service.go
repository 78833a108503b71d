package services

import (
	"context"
	"fmt"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/auth"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// SendCampaignInput is an admin campaign. A nil SelectedIDs targets every
// active consent.
type SendCampaignInput struct {
	Subject     string        `json:"subject" validate:"required,max=200"`
	Body        string        `json:"body" validate:"required,max=50000"`
	SelectedIDs []utils.SixID `json:"selected_ids"`
}

// CampaignResult summarises a queued campaign.
type CampaignResult struct {
	Recipients int `json:"recipients"`
}

type ICampaignService interface {
	Send(ctx context.Context, input SendCampaignInput, actor auth.Actor) (*CampaignResult, error)
}

type campaignService struct {
	consents IConsentService
	notifier notify.Gateway
}

func NewCampaignService(consents IConsentService, notifier notify.Gateway) ICampaignService {
	return &campaignService{consents: consents, notifier: notifier}
}

// Send resolves the eligible recipients and queues one campaign task for them.
// Delivery is asynchronous; a queue failure is returned to the caller.
func (s *campaignService) Send(ctx context.Context, input SendCampaignInput, actor auth.Actor) (*CampaignResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only staff can send campaigns")
	}
	input.Subject = trimmed(input.Subject)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	recipients, err := s.consents.EligibleRecipients(ctx, input.SelectedIDs)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apperrors.Validation("no eligible recipients")
	}

	if err := s.notifier.SendCampaign(ctx, notify.CampaignTaskPayload{
		ID:         utils.NewSixID().String(),
		Subject:    input.Subject,
		Body:       input.Body,
		Recipients: recipients,
		Actor:      actor.Label(),
	}); err != nil {
		return nil, fmt.Errorf("failed to queue campaign: %w", err)
	}

	logger.Info().Int("recipients", len(recipients)).Str("actor", actor.Label()).Msg("campaign queued")
	return &CampaignResult{Recipients: len(recipients)}, nil
}
