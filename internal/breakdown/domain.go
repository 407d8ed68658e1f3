package breakdown

import (
	"time"
)

// ItemStatus enumerates work breakdown item lifecycle stages.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"
	StatusInProgress  ItemStatus = "in_progress"
	StatusUnderReview ItemStatus = "under_review"
	StatusDeclined    ItemStatus = "declined"
)

// WorkTypeFinalRender is the anchor item of every breakdown. It cannot be
// removed once created.
const WorkTypeFinalRender = "Final Render"

// Item is a percentage-weighted slice of a project's allocated budget
// assigned to one editor.
type Item struct {
	ID             int64
	ProjectID      int64
	WorkType       string
	AssignedEditor int64
	Percentage     float64
	Amount         float64
	Deadline       time.Time
	AdminApproved  bool
	ClientApproved bool
	Status         ItemStatus
	ShareDetails   string
	Links          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DualApproved reports whether both the admin and the client signed off.
func (i Item) DualApproved() bool {
	return i.AdminApproved && i.ClientApproved
}

// Declined reports whether the item was refused by its editor.
func (i Item) Declined() bool {
	return i.Status == StatusDeclined
}

// AddItemInput captures parameters for a new work breakdown item.
type AddItemInput struct {
	ProjectID      int64
	WorkType       string
	AssignedEditor int64
	Percentage     float64
	Deadline       time.Time
	ShareDetails   string
	Links          []string
}

// UpdateItemInput carries editable fields. Nil pointers leave the field
// untouched.
type UpdateItemInput struct {
	ItemID         int64
	WorkType       *string
	AssignedEditor *int64
	Percentage     *float64
	Deadline       *time.Time
	ShareDetails   *string
	Links          []string
}

// ProjectState is the slice of project data the gate needs. Defined here so
// the package does not depend on the projects package.
type ProjectState struct {
	ID       int64
	Amount   float64
	Currency string
	Accepted bool
	Closed   bool
}
