package models

import (
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// IBase is implemented by every persisted entity through the embedded Base.
type IBase interface {
	GetID() utils.SixID
	SetID(id utils.SixID)
	GenIDIfEmpty()
	GetVersion() int64
	SetVersion(v int64)
}

// Base carries the identity and the optimistic-concurrency token shared by all entities.
type Base struct {
	ID      utils.SixID `bson:"_id" json:"id"`
	Version int64       `bson:"version" json:"version"`
}

func (m *Base) GetID() utils.SixID { return m.ID }

func (m *Base) SetID(id utils.SixID) { m.ID = id }

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.ID = utils.NewSixID()
	}
}

func (m *Base) GetVersion() int64 { return m.Version }

func (m *Base) SetVersion(v int64) { m.Version = v }

// Entity kinds, used by the status workflow and the audit trail.
const (
	KindApplication = "application"
	KindBooking     = "booking"
	KindAgent       = "agent"
	KindConsent     = "consent"
)

// Timestamp normalises t to the precision every store can round-trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return toLowerTrim(email)
}
