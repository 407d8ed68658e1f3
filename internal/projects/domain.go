package projects

import (
	"strings"
	"time"

	"github.com/reelhouse/reelhouse/internal/shared"
)

// Project is a client engagement whose allocated budget is distributed to
// editors through a work breakdown.
type Project struct {
	ID           int64
	ClientID     int64
	Title        string
	Currency     string
	ClientAmount float64
	Amount       float64
	Accepted     bool
	Closed       bool
	ClosedAt     *time.Time
	Deadline     time.Time
	HiddenAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateProjectInput captures parameters for a new, unaccepted project.
type CreateProjectInput struct {
	ClientID     int64
	Title        string
	Currency     string
	ClientAmount float64
	Amount       float64
	Deadline     time.Time
}

// Validate ensures the create input is coherent.
func (in CreateProjectInput) Validate() error {
	if in.ClientID == 0 {
		return shared.NewValidationError("clientId", in.ClientID, "client is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return shared.NewValidationError("title", in.Title, "title is required")
	}
	if strings.TrimSpace(in.Currency) == "" {
		return shared.NewValidationError("currency", in.Currency, "currency is required")
	}
	if in.ClientAmount < 0 {
		return shared.NewValidationError("clientAmount", in.ClientAmount, "client amount must not be negative")
	}
	if in.Amount < 0 {
		return shared.NewValidationError("amount", in.Amount, "allocated amount must not be negative")
	}
	return nil
}

// UpdateAmountsInput edits the money fields. Nil pointers leave the field
// untouched.
type UpdateAmountsInput struct {
	ProjectID    int64
	ClientAmount *float64
	Amount       *float64
}
