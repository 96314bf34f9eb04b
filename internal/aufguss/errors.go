package aufguss

import "saunafreunde/internal/models"

// ValidationError is the error type for rejected claim requests.
type ValidationError = models.ValidationError

func invalid(field, reason string) *ValidationError {
	return models.Invalid(field, reason)
}
