package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/api/middleware"
	"github.com/creatorpay/creatorpay-backend/api/responses"
	"github.com/creatorpay/creatorpay-backend/api/validators"
	internalpayouts "github.com/creatorpay/creatorpay-backend/internal/payouts"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/pagination"
)

type runPayoutsRequest struct {
	PeriodStart time.Time  `json:"period_start" validate:"required"`
	PeriodEnd   time.Time  `json:"period_end" validate:"required"`
	DryRun      bool       `json:"dry_run"`
	CreatorID   *uuid.UUID `json:"creator_id,omitempty"`
}

// AdminRunPayouts triggers a settlement run over an explicit closed period.
func AdminRunPayouts(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		var body runPayoutsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !body.PeriodEnd.After(body.PeriodStart) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "period_end must be after period_start"))
			return
		}
		now := time.Now().UTC()
		if body.PeriodEnd.After(now) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "period_end must be in the past"))
			return
		}

		summary, err := svc.Run(r.Context(), internalpayouts.RunOptions{
			PeriodStart: body.PeriodStart.UTC(),
			PeriodEnd:   body.PeriodEnd.UTC(),
			DryRun:      body.DryRun,
			CreatorID:   body.CreatorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayouts.NewRunReport(*summary))
	}
}

// AdminCancelPayout voids a pending payout that has not reached the payment rail.
func AdminCancelPayout(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID, err := parseUUIDParam(r, "payoutId", "payout id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Cancel(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayouts.NewPayoutView(*payout))
	}
}

// CreatorPayoutHistory lists a creator's payouts newest first with cursor pagination.
func CreatorPayoutHistory(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
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

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		payouts, nextCursor, err := svc.History(r.Context(), creatorID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayouts.NewPayoutList(payouts, nextCursor))
	}
}

func parseUUIDParam(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

// requireCreatorScope allows admins through and creators only onto their own
// resources.
func requireCreatorScope(r *http.Request, creatorID uuid.UUID) error {
	ctx := r.Context()
	if middleware.RoleFromContext(ctx) == string(enums.ActorRoleAdmin) {
		return nil
	}
	if middleware.CreatorIDFromContext(ctx) == creatorID.String() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "creator scope required")
}
