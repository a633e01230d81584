package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/creatorpay-backend/api/responses"
	internalpurchases "github.com/creatorpay/creatorpay-backend/internal/purchases"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

type purchaseStatusResponse struct {
	BuyerID   uuid.UUID            `json:"buyer_id"`
	ItemID    uuid.UUID            `json:"item_id"`
	Found     bool                 `json:"found"`
	Status    enums.PurchaseStatus `json:"status,omitempty"`
	Kind      enums.PurchaseKind   `json:"kind,omitempty"`
	Currency  enums.Currency       `json:"currency,omitempty"`
	StartsAt  *time.Time           `json:"starts_at,omitempty"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

// PurchaseStatus answers the dashboard query for a buyer's most recent claim
// on an item.
func PurchaseStatus(svc internalpurchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		buyerID, err := parseUUIDQuery(r, "buyer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := parseUUIDQuery(r, "item_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.StatusByBuyerItem(r.Context(), buyerID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := purchaseStatusResponse{BuyerID: buyerID, ItemID: itemID}
		if purchase != nil {
			resp.Found = true
			resp.Status = purchase.Status
			resp.Kind = purchase.Kind
			resp.Currency = purchase.Currency
			startsAt := purchase.StartsAt
			resp.StartsAt = &startsAt
			resp.ExpiresAt = purchase.ExpiresAt
		}
		responses.WriteSuccess(w, resp)
	}
}

func parseUUIDQuery(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be a uuid").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
