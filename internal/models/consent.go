package models

import (
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// Consent sources recorded on MarketingConsent.Source.
const (
	ConsentSourceCounsellingBooking = "counselling_booking"
	ConsentSourceNewsletter         = "newsletter"
	ConsentSourceReconciliation     = "booking_reconciliation"
	ConsentSourceAdmin              = "admin"
)

// MarketingConsent records a marketing opt-in. Revocation clears IsActive;
// rows are never deleted.
type MarketingConsent struct {
	Base         `bson:",inline"`
	StudentEmail string     `bson:"student_email" json:"student_email"`
	StudentName  string     `bson:"student_name" json:"student_name"`
	StudentPhone string     `bson:"student_phone,omitempty" json:"student_phone,omitempty"`
	Source       string     `bson:"source" json:"source"`
	ConsentDate  time.Time  `bson:"consent_date" json:"consent_date"`
	IsActive     bool       `bson:"is_active" json:"is_active"`
	RevokedAt    *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// Recipient is the only data a campaign may use for sending.
type Recipient struct {
	ConsentID utils.SixID `json:"consent_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
}
