package submissions

import (
	"strings"
	"time"

	"github.com/reelhouse/reelhouse/internal/shared"
)

// Kind distinguishes an uploaded file delivery from an external link.
type Kind string

const (
	KindFile Kind = "file"
	KindLink Kind = "link"
)

// Status of a single submission. The latest submission carries the
// current review state; it flips to approved when the work item gathers
// both signoffs.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Submission is one delivery attempt for a work item. Items accumulate
// submissions; a resubmission after corrections appends rather than
// replaces.
type Submission struct {
	ID          int64
	WorkItemID  int64
	ProjectID   int64
	EditorID    int64
	Kind        Kind
	FileURL     string
	FileName    string
	Message     string
	Status      Status
	SubmittedAt time.Time
	Late        bool
	DaysLate    int
	CreatedAt   time.Time
}

// Correction is reviewer feedback attached to a work item, optionally
// with a voice note and media attachments. Resolving a correction does
// not advance the item; only a fresh submission does.
type Correction struct {
	ID         int64
	WorkItemID int64
	AuthorID   int64
	Detail     string
	VoiceFile  string
	MediaFiles []string
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// SubmitInput captures a delivery from the assigned editor.
type SubmitInput struct {
	WorkItemID int64
	Kind       Kind
	FileURL    string
	FileName   string
	Message    string
}

// NormalizedKind defaults an unset kind to link.
func (in SubmitInput) NormalizedKind() Kind {
	if in.Kind == "" {
		return KindLink
	}
	return in.Kind
}

// Validate ensures the delivery carries a location and a known kind.
func (in SubmitInput) Validate() error {
	if in.WorkItemID == 0 {
		return shared.NewValidationError("workItemId", in.WorkItemID, "work item is required")
	}
	if strings.TrimSpace(in.FileURL) == "" {
		return shared.NewValidationError("fileUrl", in.FileURL, "a delivery file or link is required")
	}
	switch in.NormalizedKind() {
	case KindFile, KindLink:
	default:
		return shared.NewValidationError("kind", string(in.Kind), "kind must be file or link")
	}
	return nil
}

// CorrectionInput captures reviewer feedback.
type CorrectionInput struct {
	WorkItemID int64
	Detail     string
	VoiceFile  string
	MediaFiles []string
}

// Validate ensures the feedback is non-empty.
func (in CorrectionInput) Validate() error {
	if in.WorkItemID == 0 {
		return shared.NewValidationError("workItemId", in.WorkItemID, "work item is required")
	}
	if strings.TrimSpace(in.Detail) == "" {
		return shared.NewValidationError("detail", in.Detail, "correction detail is required")
	}
	return nil
}
