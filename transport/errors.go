package transport

import (
	"net/http"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const (
	SuccessMessage      = "Webhook handled successfully"
	UnknownErrorMessage = "Unknown error occurred"
)

// Outcome is the transport-neutral response for a dispatch result.
type Outcome struct {
	Status  int
	Message string
	// Classified is false when the error had no known code and its detail
	// was withheld from the sender.
	Classified bool
}

// Classify maps a dispatch error to a response. Request errors answer 400
// and verification infrastructure errors 500, both with the error message.
// Anything else answers 500 with a generic message.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Status: http.StatusOK, Message: SuccessMessage, Classified: true}
	case core.IsRequestError(err):
		return Outcome{Status: http.StatusBadRequest, Message: core.ErrorMessage(err), Classified: true}
	case core.IsVerificationInfraError(err):
		return Outcome{Status: http.StatusInternalServerError, Message: core.ErrorMessage(err), Classified: true}
	default:
		return Outcome{Status: http.StatusInternalServerError, Message: UnknownErrorMessage}
	}
}
