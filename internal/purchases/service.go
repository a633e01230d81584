package purchases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

// allowedTransitions is the only authority on purchase status changes.
// Anything not listed is treated as a duplicate or out-of-order notification
// and ignored.
var allowedTransitions = map[enums.PurchaseStatus][]enums.PurchaseStatus{
	enums.PurchaseStatusPending: {
		enums.PurchaseStatusActive,
		enums.PurchaseStatusCanceled,
		enums.PurchaseStatusPaymentFailed,
	},
	enums.PurchaseStatusActive: {
		enums.PurchaseStatusPastDue,
		enums.PurchaseStatusCanceling,
		enums.PurchaseStatusCanceled,
		enums.PurchaseStatusRefunded,
	},
	enums.PurchaseStatusPastDue: {
		enums.PurchaseStatusActive,
		enums.PurchaseStatusCanceling,
		enums.PurchaseStatusCanceled,
		enums.PurchaseStatusRefunded,
	},
	enums.PurchaseStatusCanceling: {
		enums.PurchaseStatusActive,
		enums.PurchaseStatusCanceled,
		enums.PurchaseStatusRefunded,
	},
	enums.PurchaseStatusCanceled: {
		enums.PurchaseStatusRefunded,
	},
}

func transitionAllowed(from, to enums.PurchaseStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// UpsertInput carries everything a checkout confirmation supplies.
type UpsertInput struct {
	TenantID                uuid.UUID
	BuyerID                 uuid.UUID
	ItemID                  uuid.UUID
	CreatorID               uuid.UUID
	RevenueShareBps         uint16
	ExternalCustomerRef     string
	ExternalChargeRef       string
	ExternalSubscriptionRef *string
	Currency                enums.Currency
	AmountMinor             int64
	Kind                    enums.PurchaseKind
	StartsAt                time.Time
	ExpiresAt               *time.Time
}

// Service defines the purchase ledger operations.
type Service interface {
	// WithTx rebinds the service to a transaction so ledger writes commit
	// atomically with their triggering side effect.
	WithTx(tx *gorm.DB) Service
	// UpsertFromCheckout records a confirmed purchase, idempotent on the
	// external charge reference. The returned purchase is active.
	UpsertFromCheckout(ctx context.Context, input UpsertInput) (*models.Purchase, error)
	// MarkRenewed resolves the purchase a renewal invoice belongs to. The
	// purchase status is untouched; the caller accrues the earning keyed on
	// the invoice reference.
	MarkRenewed(ctx context.Context, subscriptionRef string) (*models.Purchase, error)
	// MarkStatus applies a status transition. Disallowed or repeated
	// transitions are no-ops; the boolean reports whether a change applied.
	MarkStatus(ctx context.Context, purchase *models.Purchase, to enums.PurchaseStatus, expiresAt *time.Time) (bool, error)
	// MarkRefunded moves the purchase to refunded. The caller drives
	// earning reversal.
	MarkRefunded(ctx context.Context, chargeRef string) (*models.Purchase, error)
	// StatusByBuyerItem answers the dashboard query for a buyer's claim.
	StatusByBuyerItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Purchase, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires a purchase ledger service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg}
}

func (s *service) UpsertFromCheckout(ctx context.Context, input UpsertInput) (*models.Purchase, error) {
	if input.ExternalChargeRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external charge reference required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase kind")
	}
	if input.AmountMinor < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	existing, err := s.repo.FindByChargeRef(ctx, input.ExternalChargeRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Replayed confirmation. Promote pending rows, leave the rest as-is.
		if existing.Status == enums.PurchaseStatusPending {
			if _, err := s.MarkStatus(ctx, existing, enums.PurchaseStatusActive, input.ExpiresAt); err != nil {
				return nil, err
			}
			existing.Status = enums.PurchaseStatusActive
		}
		return existing, nil
	}

	startsAt := input.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now().UTC()
	}

	purchase := &models.Purchase{
		ID:                      uuid.New(),
		TenantID:                input.TenantID,
		BuyerID:                 input.BuyerID,
		ItemID:                  input.ItemID,
		CreatorID:               input.CreatorID,
		RevenueShareBps:         input.RevenueShareBps,
		ExternalCustomerRef:     input.ExternalCustomerRef,
		ExternalChargeRef:       input.ExternalChargeRef,
		ExternalSubscriptionRef: input.ExternalSubscriptionRef,
		Currency:                input.Currency,
		AmountMinor:             input.AmountMinor,
		Kind:                    input.Kind,
		Status:                  enums.PurchaseStatusActive,
		StartsAt:                startsAt,
		ExpiresAt:               input.ExpiresAt,
		Fingerprint:             fingerprint(input.TenantID, input.BuyerID, input.ItemID, input.ExternalChargeRef),
	}
	if err := s.repo.Create(ctx, purchase); err != nil {
		if db.IsUniqueViolation(err, "ux_purchases_charge_ref") {
			// Lost a replay race; the committed row wins.
			return s.repo.FindByChargeRef(ctx, input.ExternalChargeRef)
		}
		return nil, err
	}
	return purchase, nil
}

func (s *service) MarkRenewed(ctx context.Context, subscriptionRef string) (*models.Purchase, error) {
	if subscriptionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription reference required")
	}
	purchase, err := s.repo.FindBySubscriptionRef(ctx, subscriptionRef)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found for subscription")
	}
	return purchase, nil
}

func (s *service) MarkStatus(ctx context.Context, purchase *models.Purchase, to enums.PurchaseStatus, expiresAt *time.Time) (bool, error) {
	if purchase == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "purchase required")
	}
	if !to.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid purchase status %q", to))
	}
	if purchase.Status == to {
		return false, nil
	}
	if !transitionAllowed(purchase.Status, to) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"purchase_id": purchase.ID.String(),
			"from":        purchase.Status.String(),
			"to":          to.String(),
		})
		s.logg.Info(logCtx, "purchase status transition skipped")
		return false, nil
	}
	changed, err := s.repo.UpdateStatus(ctx, purchase.ID, purchase.Status, to, expiresAt)
	if err != nil {
		return false, err
	}
	if changed {
		purchase.Status = to
		if expiresAt != nil {
			purchase.ExpiresAt = expiresAt
		}
	}
	return changed, nil
}

func (s *service) MarkRefunded(ctx context.Context, chargeRef string) (*models.Purchase, error) {
	purchase, err := s.repo.FindByChargeRef(ctx, chargeRef)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found for charge")
	}
	if purchase.Status == enums.PurchaseStatusRefunded {
		return purchase, nil
	}
	if _, err := s.MarkStatus(ctx, purchase, enums.PurchaseStatusRefunded, nil); err != nil {
		return nil, err
	}
	return purchase, nil
}

func (s *service) StatusByBuyerItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Purchase, error) {
	if buyerID == uuid.Nil || itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and item ids required")
	}
	return s.repo.FindByBuyerItem(ctx, buyerID, itemID)
}

func fingerprint(tenantID, buyerID, itemID uuid.UUID, chargeRef string) string {
	sum := sha256.Sum256([]byte(tenantID.String() + "|" + buyerID.String() + "|" + itemID.String() + "|" + chargeRef))
	return hex.EncodeToString(sum[:])
}
