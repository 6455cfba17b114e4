package dto

import (
	"io"
	"time"
)

// Upload is a file accepted from a multipart request. Reader is consumed once.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// AttachmentDownloadResponse carries a signed, time-limited download URL.
type AttachmentDownloadResponse struct {
	AttachmentID string    `json:"attachmentId"`
	Role         string    `json:"role"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// AdmitCardRequest carries exam details printed on the admit card.
type AdmitCardRequest struct {
	ExamDate     string   `json:"examDate" validate:"required,max=60"`
	ExamVenue    string   `json:"examVenue" validate:"required,max=200"`
	Instructions []string `json:"instructions" validate:"max=10,dive,max=300"`
	Notify       bool     `json:"notify"`
}
