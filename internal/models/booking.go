package models

import (
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// BookingStatus is the lifecycle state of a counselling booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// BookingStatuses lists every booking status.
var BookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled}

// Booking is a request for a counselling session. The consent flags are
// captured as submitted and never rewritten afterwards.
type Booking struct {
	Base                   `bson:",inline"`
	ReferenceCode          string        `bson:"reference_code" json:"reference_code"`
	UserID                 string        `bson:"user_id,omitempty" json:"user_id,omitempty"`
	StudentName            string        `bson:"student_name" json:"student_name"`
	StudentEmail           string        `bson:"student_email" json:"student_email"`
	StudentPhone           string        `bson:"student_phone" json:"student_phone"`
	PreferredDestinationID *utils.SixID  `bson:"preferred_destination_id,omitempty" json:"preferred_destination_id,omitempty"`
	PreferredDestination   string        `bson:"preferred_destination,omitempty" json:"preferred_destination,omitempty"`
	StudyLevel             string        `bson:"study_level,omitempty" json:"study_level,omitempty"`
	CourseInterest         string        `bson:"course_interest,omitempty" json:"course_interest,omitempty"`
	CurrentEducationLevel  string        `bson:"current_education_level,omitempty" json:"current_education_level,omitempty"`
	EnglishTestScore       string        `bson:"english_test_score,omitempty" json:"english_test_score,omitempty"`
	WorkExperience         string        `bson:"work_experience,omitempty" json:"work_experience,omitempty"`
	Message                string        `bson:"message,omitempty" json:"message,omitempty"`
	PreferredDate          string        `bson:"preferred_date,omitempty" json:"preferred_date,omitempty"`
	PreferredTime          string        `bson:"preferred_time,omitempty" json:"preferred_time,omitempty"`
	AgreesToTerms          bool          `bson:"agrees_to_terms" json:"agrees_to_terms"`
	AgreesToContact        bool          `bson:"agrees_to_contact" json:"agrees_to_contact"`
	AgreesToMarketing      bool          `bson:"agrees_to_marketing" json:"agrees_to_marketing"`
	Status                 BookingStatus `bson:"status" json:"status"`
	AdminNotes             string        `bson:"admin_notes" json:"admin_notes"`
	CreatedAt              time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `bson:"updated_at" json:"updated_at"`
}

func (b *Booking) WorkflowState() (string, string) {
	return KindBooking, string(b.Status)
}
