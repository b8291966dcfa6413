package httputil

import (
	"errors"
	"net/http"

	"github.com/gstpilot/billing/pkg/billing"
)

// WriteDomainError maps billing domain errors onto HTTP status codes and
// writes the JSON error body. Unknown errors become 500s.
//
// InvalidTransitionError deliberately maps to 409 rather than 500: the
// request was well formed, the entity just is not in a state that allows it.
func WriteDomainError(w http.ResponseWriter, err error) {
	var (
		invalidState      *billing.InvalidStateError
		invalidTransition *billing.InvalidTransitionError
		conflict          *billing.ConflictError
		configuration     *billing.ConfigurationError
		signature         *billing.SignatureVerificationError
		gatewayDown       *billing.GatewayUnavailableError
	)

	switch {
	case errors.Is(err, billing.ErrNotFound):
		WriteNotFoundError(w, err.Error())
	case errors.As(err, &invalidState):
		WriteConflict(w, err.Error())
	case errors.As(err, &invalidTransition):
		WriteConflict(w, err.Error())
	case errors.As(err, &conflict):
		WriteConflict(w, err.Error())
	case errors.As(err, &configuration):
		WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &signature):
		WriteUnauthorized(w, err.Error())
	case errors.As(err, &gatewayDown):
		WriteErrorMessage(w, http.StatusBadGateway, err.Error())
	default:
		WriteInternalError(w, err)
	}
}
