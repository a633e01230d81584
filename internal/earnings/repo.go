package earnings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// SummaryRow aggregates a creator's earnings for one currency.
type SummaryRow struct {
	Currency     enums.Currency `json:"currency"`
	EarningCount int64          `json:"earning_count"`
	GrossMinor   int64          `json:"gross_minor"`
	FeeMinor     int64          `json:"fee_minor"`
	NetMinor     int64          `json:"net_minor"`
	UnpaidMinor  int64          `json:"unpaid_minor"`
}

// Repository manages persistence for the append-only earnings ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, earning *models.CreatorEarning) error
	FindByDedupeKey(ctx context.Context, dedupeKey string) (*models.CreatorEarning, error)
	ListByPurchaseID(ctx context.Context, purchaseID uuid.UUID) ([]models.CreatorEarning, error)
	ListByPayoutID(ctx context.Context, payoutID uuid.UUID) ([]models.CreatorEarning, error)
	// SetStatus flips an earning's reversal status only from the expected
	// current status, reporting whether the row was claimed.
	SetStatus(ctx context.Context, id uuid.UUID, from, to enums.EarningStatus) (bool, error)
	SummarizeByCreator(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]SummaryRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an earnings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, earning *models.CreatorEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *repository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*models.CreatorEarning, error) {
	if dedupeKey == "" {
		return nil, nil
	}
	var earning models.CreatorEarning
	if err := r.db.WithContext(ctx).
		Where("dedupe_key = ?", dedupeKey).
		First(&earning).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &earning, nil
}

func (r *repository) ListByPurchaseID(ctx context.Context, purchaseID uuid.UUID) ([]models.CreatorEarning, error) {
	var rows []models.CreatorEarning
	if err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("earned_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByPayoutID(ctx context.Context, payoutID uuid.UUID) ([]models.CreatorEarning, error) {
	var rows []models.CreatorEarning
	if err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("earned_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to enums.EarningStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreatorEarning{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SummarizeByCreator(ctx context.Context, creatorID uuid.UUID, from, to time.Time) ([]SummaryRow, error) {
	var rows []SummaryRow
	err := r.db.WithContext(ctx).
		Model(&models.CreatorEarning{}).
		Select(`currency,
			COUNT(*) AS earning_count,
			COALESCE(SUM(gross_minor), 0) AS gross_minor,
			COALESCE(SUM(fee_minor), 0) AS fee_minor,
			COALESCE(SUM(net_minor), 0) AS net_minor,
			COALESCE(SUM(CASE WHEN NOT paid_out AND payout_id IS NULL THEN net_minor ELSE 0 END), 0) AS unpaid_minor`).
		Where("creator_id = ? AND status = ? AND earned_at >= ? AND earned_at <= ?",
			creatorID, enums.EarningStatusAccrued, from, to).
		Group("currency").
		Order("currency ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
