package models

import "time"

// EmailTemplate defines the structure for email templates stored in the DB.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string    `bson:"template_id" json:"template_id"` // e.g., "agent_invitation", "booking_received"
	Locale     string    `bson:"locale" json:"locale"`           // e.g., "en-US"
	Subject    string    `bson:"subject" json:"subject"`
	Body       string    `bson:"body" json:"body"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// StatusChange is one entry of the status audit trail.
type StatusChange struct {
	Base       `bson:",inline"`
	EntityKind string    `bson:"entity_kind" json:"entity_kind"`
	EntityID   string    `bson:"entity_id" json:"entity_id"`
	From       string    `bson:"from" json:"from"`
	To         string    `bson:"to" json:"to"`
	Actor      string    `bson:"actor" json:"actor"`
	Note       string    `bson:"note,omitempty" json:"note,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}
