package receipts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Repository persists receipts.
type Repository interface {
	Create(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error)
	FindByVisitID(ctx context.Context, visitID uuid.UUID) (*models.Receipt, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Receipt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a receipts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error) {
	if err := r.db.WithContext(ctx).Create(receipt).Error; err != nil {
		return nil, err
	}
	return receipt, nil
}

func (r *repository) FindByVisitID(ctx context.Context, visitID uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).
		Where("visit_id = ?", visitID).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Receipt, error) {
	var receipts []models.Receipt
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("paid_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}
