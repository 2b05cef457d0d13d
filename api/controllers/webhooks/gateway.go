package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/venturetrips/venture-backend/api/responses"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/gateway"
	"github.com/venturetrips/venture-backend/pkg/logger"
)

type CallbackService interface {
	HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error
}

// PaymentWebhook ingests signed settlement reports from the payment gateway.
// Anything past a parseable payload is acknowledged so the gateway stops
// retrying; rejected reports are logged and leave no state behind.
func PaymentWebhook(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "callback service unavailable"))
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload gateway.CallbackPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback payload"))
			return
		}

		if err := svc.HandleCallback(ctx, payload); err != nil {
			if logg != nil {
				logCtx := logg.WithFields(ctx, map[string]any{
					"reference": payload.Reference,
					"status":    payload.Status,
				})
				logg.Error(logCtx, "payment.callback.rejected", err)
			}
			responses.WriteSuccess(w, map[string]any{"received": true, "applied": false})
			return
		}

		responses.WriteSuccess(w, map[string]any{"received": true, "applied": true})
	}
}
