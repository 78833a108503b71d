package models

import (
	"strings"
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// ApplicationStatus is the staff-managed lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationApproved    ApplicationStatus = "approved"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

// ApplicationStatuses lists every application status.
var ApplicationStatuses = []ApplicationStatus{
	ApplicationSubmitted, ApplicationUnderReview, ApplicationApproved, ApplicationRejected, ApplicationWithdrawn,
}

// Document describes a file attached to an application. The bytes live in object storage.
type Document struct {
	Name       string    `bson:"name" json:"name"`
	Size       int64     `bson:"size" json:"size"`
	MimeType   string    `bson:"mime_type" json:"mime_type"`
	StorageKey string    `bson:"storage_key,omitempty" json:"storage_key,omitempty"`
	AddedAt    time.Time `bson:"added_at" json:"added_at"`
}

// Application is a student's application for a course.
type Application struct {
	Base          `bson:",inline"`
	ReferenceCode string            `bson:"reference_code" json:"reference_code"`
	UserID        string            `bson:"user_id,omitempty" json:"user_id,omitempty"` // auth subject of the submitting student
	StudentName   string            `bson:"student_name" json:"student_name"`
	StudentEmail  string            `bson:"student_email" json:"student_email"`
	StudentPhone  string            `bson:"student_phone" json:"student_phone"`
	DateOfBirth   string            `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Nationality   string            `bson:"nationality,omitempty" json:"nationality,omitempty"`
	Address       string            `bson:"address,omitempty" json:"address,omitempty"`
	CourseID      *utils.SixID      `bson:"course_id,omitempty" json:"course_id,omitempty"`
	UniversityID  *utils.SixID      `bson:"university_id,omitempty" json:"university_id,omitempty"`
	DestinationID *utils.SixID      `bson:"destination_id,omitempty" json:"destination_id,omitempty"`
	Documents     []Document        `bson:"documents" json:"documents"`
	Status        ApplicationStatus `bson:"status" json:"status"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

// Editable reports whether the student data may still be changed.
func (a *Application) Editable() bool {
	return a.Status == ApplicationSubmitted || a.Status == ApplicationUnderReview
}

// OwnedBy reports whether the caller identified by userID/email owns the application.
func (a *Application) OwnedBy(userID, email string) bool {
	if a.UserID != "" && userID != "" {
		return a.UserID == userID
	}
	return email != "" && a.StudentEmail == NormalizeEmail(email)
}

func (a *Application) WorkflowState() (string, string) {
	return KindApplication, string(a.Status)
}

func toLowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
