package services

import (
	"context"

	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// IHistoryService records and reads the status audit trail.
type IHistoryService interface {
	Record(ctx context.Context, change *models.StatusChange)
	List(ctx context.Context, kind string, entityID utils.SixID) ([]*models.StatusChange, error)
}

type historyService struct {
	changes store.Store[models.StatusChange]
}

func NewHistoryService(changes store.Store[models.StatusChange]) IHistoryService {
	return &historyService{changes: changes}
}

// Record stores change. The audit trail is a secondary effect, so failures are only logged.
func (s *historyService) Record(ctx context.Context, change *models.StatusChange) {
	if err := s.changes.Create(ctx, change); err != nil {
		logger.Warn().Err(err).
			Str("kind", change.EntityKind).
			Str("entity_id", change.EntityID).
			Str("to", change.To).
			Msg("failed to record status change")
		return
	}
	logger.Info().
		Str("kind", change.EntityKind).
		Str("entity_id", change.EntityID).
		Str("from", change.From).
		Str("to", change.To).
		Str("actor", change.Actor).
		Msg("status changed")
}

func (s *historyService) List(ctx context.Context, kind string, entityID utils.SixID) ([]*models.StatusChange, error) {
	return s.changes.List(ctx, store.Query{
		Filters: []store.Filter{store.Eq("entity_kind", kind), store.Eq("entity_id", entityID.String())},
		Order:   []store.Order{{Field: "at"}},
	})
}
