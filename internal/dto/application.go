package dto

import (
	"encoding/json"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// SubmitApplicationRequest is the public intake payload. Fields carries the
// category specific form (parent details, previous school, ...).
type SubmitApplicationRequest struct {
	ApplicantName string          `json:"applicantName" validate:"required,min=2,max=150"`
	Email         string          `json:"email" validate:"required,email,max=254"`
	Phone         string          `json:"phone" validate:"omitempty,min=6,max=20"`
	GradeApplying string          `json:"gradeApplying" validate:"omitempty,max=20"`
	Fields        json.RawMessage `json:"fields"`
}

// UpdateApplicationRequest edits applicant fields without touching status.
type UpdateApplicationRequest struct {
	ApplicantName *string         `json:"applicantName" validate:"omitempty,min=2,max=150"`
	Email         *string         `json:"email" validate:"omitempty,email,max=254"`
	Phone         *string         `json:"phone" validate:"omitempty,min=6,max=20"`
	GradeApplying *string         `json:"gradeApplying" validate:"omitempty,max=20"`
	Fields        json.RawMessage `json:"fields"`
	Notes         *string         `json:"notes" validate:"omitempty,max=2000"`
}

// TransitionRequest asks the workflow to move a record to a terminal state.
type TransitionRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required,oneof=approved rejected"`
	Notes  string                   `json:"notes" validate:"max=2000"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	Category      models.ApplicationCategory
	Status        []models.ApplicationStatus
	Search        string
	GradeApplying string
	CreatedFrom   string
	CreatedTo     string
	SortBy        string
	SortOrder     string
	Page          int
	PageSize      int
}

// SubmitApplicationResponse acknowledges a public submission.
type SubmitApplicationResponse struct {
	ID       string                     `json:"id"`
	Category models.ApplicationCategory `json:"category"`
	Status   models.ApplicationStatus   `json:"status"`
}

// ApplicationDetail bundles a record with its attachment references.
type ApplicationDetail struct {
	models.Application
	Attachments []models.Attachment `json:"attachments"`
}

// DeleteApplicationResponse reports a delete that may have left orphans.
type DeleteApplicationResponse struct {
	ID       string   `json:"id"`
	Deleted  bool     `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`
}

// CounterResponse exposes the current value of a sequence.
type CounterResponse struct {
	Category models.ApplicationCategory `json:"category"`
	Key      string                     `json:"key"`
	Value    int64                      `json:"value"`
	LastID   string                     `json:"lastId,omitempty"`
}
