package httpx

import (
	"errors"
	"net/http"

	"github.com/reelhouse/reelhouse/internal/shared"
)

// RespondError maps the engine's error taxonomy to HTTP responses using
// RFC7807. Validation errors carry the offending field and value, state
// errors carry the current state, so clients can resync without a re-read.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr *shared.ValidationError
		policyErr     *shared.PolicyError
		stateErr      *shared.StateError
		notFoundErr   *shared.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		JSON(w, http.StatusUnprocessableEntity, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusUnprocessableEntity,
			Detail: validationErr.Detail,
			Field:  validationErr.Field,
			Value:  validationErr.Value,
		})
	case errors.As(err, &policyErr):
		Problem(w, http.StatusConflict, "Policy Violation", policyErr.Detail)
	case errors.As(err, &stateErr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Title:  "Invalid State",
			Status: http.StatusConflict,
			Detail: stateErr.Detail,
			State:  stateErr.Current,
		})
	case errors.As(err, &notFoundErr):
		Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
