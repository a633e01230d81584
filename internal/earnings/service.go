package earnings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/internal/revshare"
	"github.com/creatorpay/creatorpay-backend/pkg/db"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox/payloads"
)

// RecordInput captures one revenue event to accrue.
type RecordInput struct {
	CreatorID       uuid.UUID
	ItemID          uuid.UUID
	PurchaseID      uuid.UUID
	DedupeKey       string
	GrossMinor      int64
	Currency        enums.Currency
	RevenueShareBps uint16
	EarnedAt        time.Time
}

// ReverseResult reports what a reversal touched.
type ReverseResult struct {
	Voided    int
	Clawbacks int
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines operations on the earnings ledger.
type Service interface {
	// WithTx rebinds the service to a transaction so earnings commit
	// atomically with their triggering side effect.
	WithTx(tx *gorm.DB) Service
	// Record accrues an earning exactly once per dedupe key. A replay
	// returns the stored row unchanged.
	Record(ctx context.Context, input RecordInput) (*models.CreatorEarning, error)
	// Reverse handles refund/chargeback for a purchase: unpaid earnings are
	// voided, paid earnings are flagged for clawback. History is never
	// deleted.
	Reverse(ctx context.Context, purchaseID uuid.UUID) (ReverseResult, error)
	SummaryByCreator(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]SummaryRow, error)
}

type service struct {
	repo   Repository
	outbox outboxEmitter
	logg   *logger.Logger
	tx     *gorm.DB
}

// NewService wires an earnings service.
func NewService(repo Repository, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("earnings repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, outbox: emitter, logg: logg}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), outbox: s.outbox, logg: s.logg, tx: tx}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.CreatorEarning, error) {
	if input.CreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id is required")
	}
	if input.PurchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	if input.DedupeKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dedupe key is required")
	}
	if input.GrossMinor < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must not be negative")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	existing, err := s.repo.FindByDedupeKey(ctx, input.DedupeKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	fee, net, err := revshare.Split(uint64(input.GrossMinor), input.RevenueShareBps)
	if err != nil {
		return nil, err
	}

	earnedAt := input.EarnedAt
	if earnedAt.IsZero() {
		earnedAt = time.Now().UTC()
	}

	earning := &models.CreatorEarning{
		ID:              uuid.New(),
		CreatorID:       input.CreatorID,
		ItemID:          input.ItemID,
		PurchaseID:      input.PurchaseID,
		DedupeKey:       input.DedupeKey,
		GrossMinor:      input.GrossMinor,
		FeeMinor:        int64(fee),
		NetMinor:        int64(net),
		RevenueShareBps: input.RevenueShareBps,
		Currency:        input.Currency,
		Status:          enums.EarningStatusAccrued,
		EarnedAt:        earnedAt,
	}
	if err := s.repo.Create(ctx, earning); err != nil {
		if db.IsUniqueViolation(err, "ux_earnings_dedupe_key") {
			return s.repo.FindByDedupeKey(ctx, input.DedupeKey)
		}
		return nil, err
	}
	return earning, nil
}

func (s *service) Reverse(ctx context.Context, purchaseID uuid.UUID) (ReverseResult, error) {
	var result ReverseResult
	if purchaseID == uuid.Nil {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}

	rows, err := s.repo.ListByPurchaseID(ctx, purchaseID)
	if err != nil {
		return result, err
	}

	for i := range rows {
		earning := rows[i]
		if earning.Status != enums.EarningStatusAccrued {
			continue
		}
		if earning.PaidOut {
			changed, err := s.repo.SetStatus(ctx, earning.ID, enums.EarningStatusAccrued, enums.EarningStatusClawback)
			if err != nil {
				return result, err
			}
			if !changed {
				continue
			}
			result.Clawbacks++
			s.alertClawback(ctx, &earning)
			if err := s.emitClawback(ctx, &earning); err != nil {
				return result, err
			}
			continue
		}
		changed, err := s.repo.SetStatus(ctx, earning.ID, enums.EarningStatusAccrued, enums.EarningStatusVoided)
		if err != nil {
			return result, err
		}
		if changed {
			result.Voided++
		}
	}
	return result, nil
}

func (s *service) SummaryByCreator(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]SummaryRow, error) {
	if creatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id is required")
	}
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period end precedes period start")
	}
	return s.repo.SummarizeByCreator(ctx, creatorID, from, to)
}

// alertClawback surfaces paid-then-refunded earnings for manual
// reconciliation; money recovery is not automated here.
func (s *service) alertClawback(ctx context.Context, earning *models.CreatorEarning) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"earning_id":  earning.ID.String(),
		"creator_id":  earning.CreatorID.String(),
		"purchase_id": earning.PurchaseID.String(),
		"net_minor":   earning.NetMinor,
		"currency":    earning.Currency.String(),
	})
	s.logg.Error(logCtx, "paid earning refunded, clawback required", nil)
}

func (s *service) emitClawback(ctx context.Context, earning *models.CreatorEarning) error {
	if s.outbox == nil || s.tx == nil {
		return nil
	}
	return s.outbox.Emit(ctx, s.tx, outbox.DomainEvent{
		EventType:     enums.EventEarningClawbackFlagged,
		AggregateType: enums.AggregateEarning,
		AggregateID:   earning.ID,
		Data: payloads.EarningClawbackFlaggedEvent{
			EarningID:  earning.ID,
			CreatorID:  earning.CreatorID,
			PurchaseID: earning.PurchaseID,
			PayoutID:   earning.PayoutID,
			Currency:   earning.Currency,
			NetMinor:   earning.NetMinor,
			FlaggedAt:  time.Now().UTC(),
		},
	})
}
