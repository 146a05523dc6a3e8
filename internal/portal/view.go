package portal

import "strings"

const (
	MsgInvalid            = "Certificate is invalid or revoked."
	MsgImageFailed        = "Failed to load certificate image."
	MsgVerificationFailed = "Verification failed. Please try again."

	LabelVerify    = "Verify Certificate"
	LabelVerifying = "Verifying..."
)

// Phase of one verification cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseResolvedValid
	PhaseResolvedInvalid
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseResolvedValid:
		return "resolved_valid"
	case PhaseResolvedInvalid:
		return "resolved_invalid"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether a new verification may start from p.
func (p Phase) Terminal() bool {
	return p != PhaseLoading
}

// ViewState is everything the page renders. It lives in memory only.
type ViewState struct {
	CertID      string `json:"certId"`
	StudentName string `json:"studentName"`
	BlobID      string `json:"blobId"`
	IsValid     bool   `json:"isValid"`
	Loading     bool   `json:"loading"`
	Message     string `json:"message"`
	Phase       Phase  `json:"-"`
}

func (s ViewState) ShowStudent() bool { return s.IsValid && s.StudentName != "" }

func (s ViewState) ShowImage() bool { return s.IsValid && s.BlobID != "" }

func (s ViewState) ShowMessage() bool { return s.Message != "" }

// ButtonDisabled mirrors the trigger guard: no submit while empty or in flight.
func (s ViewState) ButtonDisabled() bool { return s.Loading || s.CertID == "" }

func (s ViewState) ButtonLabel() string {
	if s.Loading {
		return LabelVerifying
	}
	return LabelVerify
}

func (s ViewState) StatusLabel() string {
	if s.IsValid {
		return "Valid"
	}
	return "Invalid"
}

// MessageTone is "success" for success messages and "error" for everything else.
func (s ViewState) MessageTone() string {
	if strings.Contains(s.Message, "successful") {
		return "success"
	}
	return "error"
}
