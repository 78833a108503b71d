package models

import (
	"time"

	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// Destination is a study destination country or region.
type Destination struct {
	Base      `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Slug      string    `bson:"slug" json:"slug"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Course is a course offered by a university at a destination.
type Course struct {
	Base           `bson:",inline"`
	Title          string       `bson:"title" json:"title"`
	Slug           string       `bson:"slug" json:"slug"`
	UniversityID   *utils.SixID `bson:"university_id,omitempty" json:"university_id,omitempty"`
	UniversityName string       `bson:"university_name,omitempty" json:"university_name,omitempty"`
	DestinationID  *utils.SixID `bson:"destination_id,omitempty" json:"destination_id,omitempty"`
	StudyLevel     string       `bson:"study_level,omitempty" json:"study_level,omitempty"`
	IsPublished    bool         `bson:"is_published" json:"is_published"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updated_at"`
}

// SavedCourse is a student's bookmark. Unique per (UserID, CourseID).
type SavedCourse struct {
	Base      `bson:",inline"`
	UserID    string      `bson:"user_id" json:"user_id"`
	CourseID  utils.SixID `bson:"course_id" json:"course_id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
