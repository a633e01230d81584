package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// Repository handles payout persistence and the earning reservation writes
// that belong to it.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByTransferRef(ctx context.Context, transferRef string) (*models.Payout, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID, limit int, cursorCreatedAt *time.Time, cursorID *uuid.UUID) ([]models.Payout, error)

	// SelectUnpaid returns accrued, unreserved earnings for the creator
	// with earned_at inside the closed period, ordered for stable claims.
	SelectUnpaid(ctx context.Context, creatorID uuid.UUID, periodStart, periodEnd time.Time) ([]models.CreatorEarning, error)
	// ClaimEarnings assigns the payout to every listed earning that is
	// still unreserved, in one conditional statement. The returned count is
	// the number of rows actually claimed.
	ClaimEarnings(ctx context.Context, payoutID uuid.UUID, earningIDs []uuid.UUID) (int64, error)
	// ReleaseEarnings clears the reservation on every earning held by the
	// payout so they become eligible for the next run.
	ReleaseEarnings(ctx context.Context, payoutID uuid.UUID) (int64, error)
	// MarkEarningsPaid flips paid_out on reserved earnings, keeping the
	// payout_id for audit.
	MarkEarningsPaid(ctx context.Context, payoutID uuid.UUID) (int64, error)
	ListEarnings(ctx context.Context, payoutID uuid.UUID) ([]models.CreatorEarning, error)

	// MarkPaid finalizes a pending payout. Reports false when the payout
	// already left pending.
	MarkPaid(ctx context.Context, payoutID uuid.UUID, transferRef string, paidAt time.Time) (bool, error)
	// MarkFailed moves the payout to failed from any non-failed status; an
	// authoritative async failure may override a local paid.
	MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (bool, error)
	SetTransferRef(ctx context.Context, payoutID uuid.UUID, transferRef string) error
	SetReportURL(ctx context.Context, payoutID uuid.UUID, reportURL string) error
	// ListPaidMissingReport returns paid payouts with no report attached,
	// oldest first.
	ListPaidMissingReport(ctx context.Context, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByTransferRef(ctx context.Context, transferRef string) (*models.Payout, error) {
	if transferRef == "" {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.WithContext(ctx).
		Where("external_transfer_ref = ?", transferRef).
		First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByCreator(ctx context.Context, creatorID uuid.UUID, limit int, cursorCreatedAt *time.Time, cursorID *uuid.UUID) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursorCreatedAt != nil && cursorID != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			*cursorCreatedAt, *cursorID,
		)
	}
	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) SelectUnpaid(ctx context.Context, creatorID uuid.UUID, periodStart, periodEnd time.Time) ([]models.CreatorEarning, error) {
	var earnings []models.CreatorEarning
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Where("status = ?", enums.EarningStatusAccrued).
		Where("paid_out = ?", false).
		Where("payout_id IS NULL").
		Where("earned_at >= ? AND earned_at <= ?", periodStart, periodEnd).
		Order("earned_at ASC, id ASC").
		Find(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

func (r *repository) ClaimEarnings(ctx context.Context, payoutID uuid.UUID, earningIDs []uuid.UUID) (int64, error) {
	if len(earningIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.CreatorEarning{}).
		Where("id IN ?", earningIDs).
		Where("payout_id IS NULL").
		Where("paid_out = ?", false).
		Where("status = ?", enums.EarningStatusAccrued).
		Update("payout_id", payoutID)
	return result.RowsAffected, result.Error
}

func (r *repository) ReleaseEarnings(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreatorEarning{}).
		Where("payout_id = ?", payoutID).
		Updates(map[string]interface{}{
			"payout_id": nil,
			"paid_out":  false,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkEarningsPaid(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreatorEarning{}).
		Where("payout_id = ?", payoutID).
		Update("paid_out", true)
	return result.RowsAffected, result.Error
}

func (r *repository) ListEarnings(ctx context.Context, payoutID uuid.UUID) ([]models.CreatorEarning, error) {
	var earnings []models.CreatorEarning
	err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("earned_at ASC, id ASC").
		Find(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

func (r *repository) MarkPaid(ctx context.Context, payoutID uuid.UUID, transferRef string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", payoutID).
		Where("status = ?", enums.PayoutStatusPending).
		Updates(map[string]interface{}{
			"status":                enums.PayoutStatusPaid,
			"external_transfer_ref": transferRef,
			"paid_at":               paidAt,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) MarkFailed(ctx context.Context, payoutID uuid.UUID, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", payoutID).
		Where("status <> ?", enums.PayoutStatusFailed).
		Updates(map[string]interface{}{
			"status":         enums.PayoutStatusFailed,
			"failure_reason": reason,
			"paid_at":        nil,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) SetTransferRef(ctx context.Context, payoutID uuid.UUID, transferRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", payoutID).
		Update("external_transfer_ref", transferRef).Error
}

func (r *repository) SetReportURL(ctx context.Context, payoutID uuid.UUID, reportURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", payoutID).
		Update("report_url", reportURL).Error
}

func (r *repository) ListPaidMissingReport(ctx context.Context, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusPaid).
		Where("report_url IS NULL OR report_url = ''").
		Order("paid_at ASC, id ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
