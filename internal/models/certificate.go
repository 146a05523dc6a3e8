package models

import "time"

// VerificationResult is what the chain reports for a certificate id.
// StudentName and BlobID are empty when IsValid is false.
type VerificationResult struct {
	IsValid     bool   `json:"isValid"`
	StudentName string `json:"studentName"`
	BlobID      string `json:"blobId"`
}

// Outcome of a single verification attempt, as stored in the audit trail.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeInvalid Outcome = "invalid"
	OutcomeFailed  Outcome = "failed"
)

// VerificationAttempt is an append-only audit row. It is never read back to
// answer a lookup.
type VerificationAttempt struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CertID      string    `gorm:"index;size:256;not null" json:"cert_id"`
	Outcome     Outcome   `gorm:"size:16;not null" json:"outcome"`
	StudentName string    `json:"student_name"`
	BlobID      string    `json:"blob_id"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
