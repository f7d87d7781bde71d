package custom_errors

import "github.com/pkg/errors"

// Stable codes handed to the API layer. They never change once published.
const (
	CodeInsufficientResources  = "insufficient_resources"
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeNotFound               = "not_found"
	CodeInvalidRequest         = "invalid_request"
	CodeInternal               = "internal"
)

// Code maps an error returned by the ledger or the process engine to its stable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case isValidation(err):
		return CodeInvalidRequest
	case errors.Is(err, ErrInsufficientResources):
		return CodeInsufficientResources
	case errors.Is(err, ErrInvalidStateTransition):
		return CodeInvalidStateTransition
	case errors.Is(err, ErrProcessNotFound), errors.Is(err, ErrServerNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
