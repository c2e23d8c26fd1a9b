package api

import (
	"errors"
	"net/http"

	"github.com/ignite/broadcast-engine/internal/pkg/httputil"
	"github.com/ignite/broadcast-engine/internal/recipient"
	"github.com/ignite/broadcast-engine/internal/service/audience"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// writeServiceError maps service-layer errors onto HTTP statuses:
// validation 400, ownership 403, missing 404, lifecycle conflicts 409,
// anything else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var transition *broadcast.InvalidTransitionError
	switch {
	case errors.Is(err, broadcast.ErrNotFound),
		errors.Is(err, audience.ErrSubscriberNotFound),
		errors.Is(err, audience.ErrGroupNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, broadcast.ErrForbidden):
		httputil.Forbidden(w, err.Error())
	case errors.As(err, &transition),
		errors.Is(err, broadcast.ErrImmutable),
		errors.Is(err, broadcast.ErrNotClaimed),
		errors.Is(err, audience.ErrDefaultGroup):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, recipient.ErrNoRecipients),
		errors.Is(err, broadcast.ErrPastSchedule),
		errors.Is(err, broadcast.ErrInvalidInput),
		errors.Is(err, audience.ErrInvalidInput):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
