package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
)

// Repository handles purchase persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	Update(ctx context.Context, purchase *models.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByChargeRef(ctx context.Context, chargeRef string) (*models.Purchase, error)
	FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Purchase, error)
	FindByBuyerItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Purchase, error)
	// UpdateStatus flips status (and optionally expiry) only when the row
	// still holds fromStatus, reporting whether a row was claimed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PurchaseStatus, expiresAt *time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a purchase repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) Update(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Save(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByChargeRef(ctx context.Context, chargeRef string) (*models.Purchase, error) {
	if chargeRef == "" {
		return nil, nil
	}
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("external_charge_ref = ?", chargeRef).
		First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindBySubscriptionRef(ctx context.Context, subscriptionRef string) (*models.Purchase, error) {
	if subscriptionRef == "" {
		return nil, nil
	}
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("external_subscription_ref = ?", subscriptionRef).
		First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByBuyerItem(ctx context.Context, buyerID, itemID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND item_id = ?", buyerID, itemID).
		Order("created_at DESC").
		First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PurchaseStatus, expiresAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if expiresAt != nil {
		updates["expires_at"] = *expiresAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
