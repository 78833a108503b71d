package workflow

import (
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/models"
	"github.com/movesintl/moves-study-hub-sub001/internal/store"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// transitions lists the allowed targets for every non-terminal state.
// States that appear only as targets are terminal.
var transitions = map[string]map[string][]string{
	models.KindApplication: {
		string(models.ApplicationSubmitted):   {string(models.ApplicationUnderReview), string(models.ApplicationWithdrawn)},
		string(models.ApplicationUnderReview): {string(models.ApplicationApproved), string(models.ApplicationRejected)},
	},
	models.KindBooking: {
		string(models.BookingPending):   {string(models.BookingConfirmed), string(models.BookingCancelled)},
		string(models.BookingConfirmed): {string(models.BookingCompleted), string(models.BookingCancelled)},
	},
	models.KindAgent: {
		string(models.AgentInvited): {string(models.AgentActivated)},
	},
}

var states = map[string][]string{
	models.KindApplication: toStrings(models.ApplicationStatuses),
	models.KindBooking:     toStrings(models.BookingStatuses),
	models.KindAgent:       {string(models.AgentInvited), string(models.AgentActivated)},
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// Stateful is an entity governed by a status workflow.
type Stateful interface {
	GetID() utils.SixID
	WorkflowState() (kind string, state string)
}

// Change is an accepted transition, ready to be persisted.
type Change struct {
	Kind     string
	EntityID utils.SixID
	From     string
	To       string
	Actor    string
	At       time.Time
}

// Patch returns the status and timestamp fields the transition writes.
func (c Change) Patch() store.Patch {
	return store.Patch{"status": c.To, "updated_at": c.At}
}

// Record returns the audit trail entry for the transition.
func (c Change) Record(note string) *models.StatusChange {
	return &models.StatusChange{
		EntityKind: c.Kind,
		EntityID:   c.EntityID.String(),
		From:       c.From,
		To:         c.To,
		Actor:      c.Actor,
		Note:       note,
		At:         c.At,
	}
}

// Workflow validates status changes against the transition tables.
type Workflow struct {
	now func() time.Time
}

// New returns a Workflow stamping changes with the wall clock.
func New() *Workflow {
	return &Workflow{now: time.Now}
}

// NewWithClock returns a Workflow stamping changes with now.
func NewWithClock(now func() time.Time) *Workflow {
	return &Workflow{now: now}
}

// CanTransition reports whether kind may move from one state to another.
func CanTransition(kind, from, to string) bool {
	for _, next := range transitions[kind][from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether state has no outgoing transitions.
func IsTerminal(kind, state string) bool {
	return len(transitions[kind][state]) == 0
}

// States lists every known state of kind.
func States(kind string) []string {
	return states[kind]
}

// IsKnownState reports whether state belongs to kind.
func IsKnownState(kind, state string) bool {
	for _, s := range states[kind] {
		if s == state {
			return true
		}
	}
	return false
}

// CanTransition is the method form of the package function.
func (w *Workflow) CanTransition(kind, from, to string) bool {
	return CanTransition(kind, from, to)
}

// Now is the workflow clock, shared with services so timestamps agree.
func (w *Workflow) Now() time.Time {
	return models.Timestamp(w.now())
}

// Transition validates moving entity to state to on behalf of actor.
// Unknown targets are Validation errors; disallowed moves are IllegalTransition.
func (w *Workflow) Transition(entity Stateful, to, actor string) (Change, error) {
	kind, from := entity.WorkflowState()
	if !IsKnownState(kind, to) {
		return Change{}, apperrors.Validation("unknown %s status %q", kind, to)
	}
	if !CanTransition(kind, from, to) {
		return Change{}, apperrors.IllegalTransition(kind, from, to)
	}
	return Change{
		Kind:     kind,
		EntityID: entity.GetID(),
		From:     from,
		To:       to,
		Actor:    actor,
		At:       w.Now(),
	}, nil
}
