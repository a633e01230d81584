package controllers

import (
	"net/http"
	"time"

	"github.com/creatorpay/creatorpay-backend/api/responses"
	"github.com/creatorpay/creatorpay-backend/api/validators"
	internalearnings "github.com/creatorpay/creatorpay-backend/internal/earnings"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

// CreatorEarningsSummary aggregates a creator's ledger per currency over an
// optional window.
func CreatorEarningsSummary(svc internalearnings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "earnings service unavailable"))
			return
		}

		creatorID, err := parseUUIDParam(r, "creatorId", "creator id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireCreatorScope(r, creatorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		from, err := validators.ParseQueryTime(r, "from", time.Time{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to", time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !from.IsZero() && !to.After(from) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "to must be after from"))
			return
		}

		rows, err := svc.SummaryByCreator(r.Context(), creatorID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"creator_id": creatorID,
			"from":       from,
			"to":         to,
			"currencies": rows,
		})
	}
}
