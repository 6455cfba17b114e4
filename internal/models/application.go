package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ApplicationCategory distinguishes the three intake pipelines.
type ApplicationCategory string

const (
	CategoryEnquiry      ApplicationCategory = "enquiry"
	CategoryAdmission    ApplicationCategory = "admission"
	CategoryRegistration ApplicationCategory = "registration"
)

// Categories lists every supported category in display order.
var Categories = []ApplicationCategory{CategoryEnquiry, CategoryAdmission, CategoryRegistration}

// Valid reports whether c is a known category.
func (c ApplicationCategory) Valid() bool {
	switch c {
	case CategoryEnquiry, CategoryAdmission, CategoryRegistration:
		return true
	}
	return false
}

// Label is the human wording used in notifications.
func (c ApplicationCategory) Label() string {
	switch c {
	case CategoryEnquiry:
		return "enquiry"
	case CategoryAdmission:
		return "admission application"
	case CategoryRegistration:
		return "aptitude test registration"
	}
	return string(c)
}

// ApplicationStatus captures the review state.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Application is an enquiry, admission or registration record.
// ExternalID is set exactly when Status is approved.
type Application struct {
	ID            string              `db:"id" json:"id"`
	Category      ApplicationCategory `db:"category" json:"category"`
	Status        ApplicationStatus   `db:"status" json:"status"`
	ExternalID    *string             `db:"external_id" json:"externalId,omitempty"`
	ApplicantName string              `db:"applicant_name" json:"applicantName"`
	Email         string              `db:"email" json:"email"`
	Phone         string              `db:"phone" json:"phone"`
	GradeApplying string              `db:"grade_applying" json:"gradeApplying"`
	Fields        types.JSONText      `db:"fields" json:"fields"`
	Notes         *string             `db:"notes" json:"notes,omitempty"`
	ReviewedBy    *string             `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time          `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updatedAt"`
}

// ExternalIDValue returns the external identifier or an empty string.
func (a *Application) ExternalIDValue() string {
	if a == nil || a.ExternalID == nil {
		return ""
	}
	return *a.ExternalID
}

// ApplicationFilter narrows list and export queries.
type ApplicationFilter struct {
	Category      ApplicationCategory
	Status        []ApplicationStatus
	Search        string
	GradeApplying string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	SortBy        string
	SortOrder     string
	Limit         int
	Offset        int
}

// ApplicationPatch carries applicant edits. Nil fields keep the stored
// value; SetNotes distinguishes clearing notes from leaving them alone.
type ApplicationPatch struct {
	ApplicantName *string
	Email         *string
	Phone         *string
	GradeApplying *string
	Fields        types.JSONText
	SetNotes      bool
	Notes         *string
}

// ApplicationReview is the persisted outcome of a transition.
type ApplicationReview struct {
	ID         string
	Status     ApplicationStatus
	ExternalID *string
	Notes      *string
	ReviewedBy string
	ReviewedAt time.Time
}

// Verification is the public view of an approved record.
type Verification struct {
	ExternalID    string              `json:"externalId"`
	Category      ApplicationCategory `json:"category"`
	ApplicantName string              `json:"applicantName"`
	GradeApplying string              `json:"gradeApplying,omitempty"`
	Status        ApplicationStatus   `json:"status"`
	ApprovedAt    *time.Time          `json:"approvedAt,omitempty"`
}
