package store

// Collection schemas. Field names are the JSON names of the models.
var (
	Applications = Schema{
		Name: "applications",
		Indexes: []Index{
			{Name: "uniq_reference_code", Fields: []string{"reference_code"}, Unique: true},
			{Name: "idx_user_id", Fields: []string{"user_id"}},
			{Name: "idx_student_email", Fields: []string{"student_email"}},
			{Name: "idx_status", Fields: []string{"status"}},
		},
		Types: map[string]FieldType{"created_at": TypeTime, "updated_at": TypeTime},
	}

	Bookings = Schema{
		Name: "bookings",
		Indexes: []Index{
			{Name: "uniq_reference_code", Fields: []string{"reference_code"}, Unique: true},
			{Name: "idx_student_email", Fields: []string{"student_email"}},
			{Name: "idx_status", Fields: []string{"status"}},
		},
		Types: map[string]FieldType{
			"agrees_to_terms":     TypeBool,
			"agrees_to_contact":   TypeBool,
			"agrees_to_marketing": TypeBool,
			"created_at":          TypeTime,
			"updated_at":          TypeTime,
		},
	}

	SavedCourses = Schema{
		Name: "saved_courses",
		Indexes: []Index{
			{Name: "uniq_user_course", Fields: []string{"user_id", "course_id"}, Unique: true},
		},
		Types: map[string]FieldType{"created_at": TypeTime},
	}

	// MarketingConsents allows any number of revoked rows per email but only one active row.
	MarketingConsents = Schema{
		Name: "marketing_consents",
		Indexes: []Index{
			{Name: "uniq_active_email", Fields: []string{"student_email"}, Unique: true, Where: []Filter{Eq("is_active", true)}},
			{Name: "idx_student_email", Fields: []string{"student_email"}},
		},
		Types: map[string]FieldType{
			"is_active":    TypeBool,
			"consent_date": TypeTime,
			"revoked_at":   TypeTime,
			"updated_at":   TypeTime,
		},
	}

	Agents = Schema{
		Name: "agents",
		Indexes: []Index{
			{Name: "uniq_email", Fields: []string{"email"}, Unique: true},
		},
		Types: map[string]FieldType{
			"is_active":    TypeBool,
			"invited_at":   TypeTime,
			"activated_at": TypeTime,
			"updated_at":   TypeTime,
		},
	}

	Courses = Schema{
		Name: "courses",
		Indexes: []Index{
			{Name: "uniq_slug", Fields: []string{"slug"}, Unique: true},
			{Name: "idx_destination_id", Fields: []string{"destination_id"}},
		},
		Types: map[string]FieldType{"is_published": TypeBool, "created_at": TypeTime, "updated_at": TypeTime},
	}

	Destinations = Schema{
		Name: "destinations",
		Indexes: []Index{
			{Name: "uniq_slug", Fields: []string{"slug"}, Unique: true},
		},
		Types: map[string]FieldType{"created_at": TypeTime, "updated_at": TypeTime},
	}

	EmailTemplates = Schema{
		Name: "email_templates",
		Indexes: []Index{
			{Name: "uniq_template_locale", Fields: []string{"template_id", "locale"}, Unique: true},
		},
		Types: map[string]FieldType{"updated_at": TypeTime},
	}

	StatusChanges = Schema{
		Name: "status_changes",
		Indexes: []Index{
			{Name: "idx_entity", Fields: []string{"entity_kind", "entity_id"}},
		},
		Types: map[string]FieldType{"at": TypeTime},
	}
)
