package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/api/middleware"
	internalearnings "github.com/creatorpay/creatorpay-backend/internal/earnings"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

type stubEarningsService struct {
	summaryFn func(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]internalearnings.SummaryRow, error)
}

func (s stubEarningsService) WithTx(*gorm.DB) internalearnings.Service { return s }

func (s stubEarningsService) Record(context.Context, internalearnings.RecordInput) (*models.CreatorEarning, error) {
	return nil, nil
}

func (s stubEarningsService) Reverse(context.Context, uuid.UUID) (internalearnings.ReverseResult, error) {
	return internalearnings.ReverseResult{}, nil
}

func (s stubEarningsService) SummaryByCreator(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]internalearnings.SummaryRow, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, creatorID, from, to)
	}
	return nil, nil
}

func summaryRequest(creatorID uuid.UUID, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/creators/"+creatorID.String()+"/earnings/summary"+query, nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("creatorId", creatorID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCreatorEarningsSummary(t *testing.T) {
	creatorID := uuid.New()
	svc := stubEarningsService{
		summaryFn: func(ctx context.Context, id uuid.UUID, from, to time.Time) ([]internalearnings.SummaryRow, error) {
			if id != creatorID {
				t.Fatalf("unexpected creator id %s", id)
			}
			if got := from.Format(time.RFC3339); got != "2026-07-01T00:00:00Z" {
				t.Fatalf("unexpected from %s", got)
			}
			return []internalearnings.SummaryRow{{
				Currency:     enums.CurrencyUSD,
				EarningCount: 3,
				GrossMinor:   10000,
				FeeMinor:     3000,
				NetMinor:     7000,
				UnpaidMinor:  7000,
			}}, nil
		},
	}

	req := summaryRequest(creatorID, "?from=2026-07-01T00:00:00Z&to=2026-08-01T00:00:00Z")
	req = req.WithContext(middleware.WithCreatorID(req.Context(), creatorID.String()))
	resp := httptest.NewRecorder()
	CreatorEarningsSummary(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			Currencies []internalearnings.SummaryRow `json:"currencies"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Currencies) != 1 || envelope.Data.Currencies[0].NetMinor != 7000 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestCreatorEarningsSummaryRejectsBadWindow(t *testing.T) {
	creatorID := uuid.New()
	req := summaryRequest(creatorID, "?from=2026-08-01T00:00:00Z&to=2026-07-01T00:00:00Z")
	req = req.WithContext(middleware.WithCreatorID(req.Context(), creatorID.String()))

	resp := httptest.NewRecorder()
	CreatorEarningsSummary(stubEarningsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreatorEarningsSummaryForbiddenForOtherCreator(t *testing.T) {
	req := summaryRequest(uuid.New(), "")
	req = req.WithContext(middleware.WithCreatorID(req.Context(), uuid.NewString()))

	resp := httptest.NewRecorder()
	CreatorEarningsSummary(stubEarningsService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
