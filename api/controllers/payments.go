package controllers

import (
	"net/http"

	"github.com/venturetrips/venture-backend/api/responses"
	"github.com/venturetrips/venture-backend/internal/payments"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/logger"
)

// CreatePaymentSession mints or reuses a gateway session for a payable
// booking and returns the booking with the live pay URL.
func CreatePaymentSession(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.CreateSession(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newBookingResponse(booking))
	}
}
