package repository

import (
	"context"

	"gorm.io/gorm"

	"fanhub/internal/model"
)

// CouponRepository coupon repository interface
type CouponRepository interface {
	// GetByCode returns the coupon with code, or nil
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
}

// couponRepository coupon repository implementation
type couponRepository struct {
	db *gorm.DB
}

// NewCouponRepository creates a coupon repository
func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

// GetByCode gets a coupon by code
func (r *couponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var c model.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
