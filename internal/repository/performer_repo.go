package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

// PerformerRepository performer repository interface
type PerformerRepository interface {
	// GetByID gets a performer by ID
	GetByID(ctx context.Context, id uint64) (*model.Performer, error)

	// SetOnline sets the presence flag
	SetOnline(ctx context.Context, id uint64, online bool) error

	// RemoveCategory strips a category id from every performer holding it
	// and returns how many performers changed
	RemoveCategory(ctx context.Context, categoryID uint64, batchSize int) (int64, error)
}

// performerRepository performer repository implementation
type performerRepository struct {
	db *gorm.DB
}

// NewPerformerRepository creates a performer repository
func NewPerformerRepository(db *gorm.DB) PerformerRepository {
	return &performerRepository{db: db}
}

// GetByID gets a performer by ID
func (r *performerRepository) GetByID(ctx context.Context, id uint64) (*model.Performer, error) {
	var p model.Performer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if isNotFound(err) {
			return nil, utils.Errorf(utils.CodeNotFound, "performer %d not found", id)
		}
		return nil, err
	}
	return &p, nil
}

// SetOnline updates presence
func (r *performerRepository) SetOnline(ctx context.Context, id uint64, online bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Performer{}).
		Where("id = ?", id).
		Update("is_online", online).Error
}

// RemoveCategory rewrites the category list of each affected performer.
// Rows are locked and re-read so a concurrent edit is not overwritten, and
// a second run finds nothing left to change.
func (r *performerRepository) RemoveCategory(ctx context.Context, categoryID uint64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	needle := fmt.Sprintf("%d", categoryID)

	var changed int64
	for {
		var n int
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var performers []model.Performer
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id", "category_ids").
				Where("JSON_CONTAINS(category_ids, ?)", needle).
				Limit(batchSize).
				Find(&performers).Error; err != nil {
				return err
			}

			for _, p := range performers {
				if err := tx.Model(&model.Performer{}).
					Where("id = ?", p.ID).
					Update("category_ids", p.CategoryIDs.Without(categoryID)).Error; err != nil {
					return err
				}
			}
			n = len(performers)
			return nil
		})
		if err != nil {
			return changed, err
		}

		changed += int64(n)
		if n < batchSize {
			return changed, nil
		}
	}
}

// incrCounter moves a non-negative counter column
func incrCounter(db *gorm.DB, table, column string, id uint64, delta int64) error {
	q := db.Table(table).Where("id = ?", id)
	if delta < 0 {
		q = q.Where(column+" >= ?", -delta)
	}
	return q.Update(column, gorm.Expr(column+" + ?", delta)).Error
}
