package creators

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
)

// Repository manages persistence for creator payee records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, creator *models.Creator) error
	Update(ctx context.Context, creator *models.Creator) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Creator, error)
	// ListPayable returns creators eligible for settlement: verified with a
	// connected payout destination.
	ListPayable(ctx context.Context) ([]models.Creator, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a creator repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, creator *models.Creator) error {
	return r.db.WithContext(ctx).Create(creator).Error
}

func (r *repository) Update(ctx context.Context, creator *models.Creator) error {
	return r.db.WithContext(ctx).Save(creator).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Creator, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var creator models.Creator
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&creator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &creator, nil
}

func (r *repository) ListPayable(ctx context.Context) ([]models.Creator, error) {
	var creators []models.Creator
	if err := r.db.WithContext(ctx).
		Where("verified AND account_ref <> ''").
		Order("created_at ASC").
		Find(&creators).Error; err != nil {
		return nil, err
	}
	return creators, nil
}
