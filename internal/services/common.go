package services

import (
	"context"

	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/notify"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page bounds a list call.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// notifyBestEffort queues msg; a failure is logged and never reaches the caller.
func notifyBestEffort(ctx context.Context, gw notify.Gateway, msg notify.EmailTaskPayload, entityID string) {
	if gw == nil {
		return
	}
	if err := gw.SendEmail(ctx, msg); err != nil {
		logger.Warn().Err(err).
			Str("entity_id", entityID).
			Str("template", msg.TemplateID).
			Msg("notification not queued")
	}
}
