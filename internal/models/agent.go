package models

import "time"

// AgentState is derived from ActivatedAt; IsActive is a separate admin gate.
type AgentState string

const (
	AgentInvited   AgentState = "invited"
	AgentActivated AgentState = "activated"
)

// Agent is a partner agency account.
type Agent struct {
	Base          `bson:",inline"`
	Email         string     `bson:"email" json:"email"`
	ContactPerson string     `bson:"contact_person" json:"contact_person"`
	CompanyName   string     `bson:"company_name" json:"company_name"`
	Phone         string     `bson:"phone" json:"phone"`
	IsActive      bool       `bson:"is_active" json:"is_active"`
	InvitedAt     time.Time  `bson:"invited_at" json:"invited_at"`
	ActivatedAt   *time.Time `bson:"activated_at" json:"activated_at"`
	PasswordHash  string     `bson:"password_hash,omitempty" json:"password_hash,omitempty"` // never rendered by the API
	InvitedBy     string     `bson:"invited_by,omitempty" json:"invited_by,omitempty"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

// State returns the workflow state of the agent.
func (a *Agent) State() AgentState {
	if a.ActivatedAt == nil {
		return AgentInvited
	}
	return AgentActivated
}

func (a *Agent) WorkflowState() (string, string) {
	return KindAgent, string(a.State())
}

// Redacted returns a copy safe to render, without the password hash.
func (a Agent) Redacted() *Agent {
	a.PasswordHash = ""
	return &a
}
