package repository

import (
	"context"

	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

// CatalogRepository reads the sellable content of performers and keeps
// the denormalised counters on it
type CatalogRepository interface {
	GetVideo(ctx context.Context, id uint64) (*model.Video, error)
	GetGallery(ctx context.Context, id uint64) (*model.Gallery, error)
	GetFeed(ctx context.Context, id uint64) (*model.Feed, error)
	GetStream(ctx context.Context, id uint64) (*model.Stream, error)

	// GetConversation returns the thread between the pair, or nil
	GetConversation(ctx context.Context, userID, performerID uint64) (*model.Conversation, error)

	// ApplyLike moves the like counters of the content and its performer
	// for one reaction event. It returns false when the event was applied
	// before.
	ApplyLike(ctx context.Context, change LikeChange) (bool, error)

	// StopStreaming clears the live flag of every stream of the performer
	StopStreaming(ctx context.Context, performerID uint64) (int64, error)
}

// LikeChange is the counter movement of one reaction event
type LikeChange struct {
	ReactionID  uint64
	Event       string
	ObjectType  string
	ObjectID    uint64
	PerformerID uint64
	Delta       int64
}

// catalogRepository catalog repository implementation
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a catalog repository
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetVideo(ctx context.Context, id uint64) (*model.Video, error) {
	var v model.Video
	if err := r.first(ctx, &v, "video", id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *catalogRepository) GetGallery(ctx context.Context, id uint64) (*model.Gallery, error) {
	var g model.Gallery
	if err := r.first(ctx, &g, "gallery", id); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *catalogRepository) GetFeed(ctx context.Context, id uint64) (*model.Feed, error) {
	var f model.Feed
	if err := r.first(ctx, &f, "feed", id); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *catalogRepository) GetStream(ctx context.Context, id uint64) (*model.Stream, error) {
	var s model.Stream
	if err := r.first(ctx, &s, "stream", id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepository) first(ctx context.Context, dest interface{}, kind string, id uint64) error {
	err := r.db.WithContext(ctx).Where("id = ?", id).First(dest).Error
	if err != nil {
		if isNotFound(err) {
			return utils.Errorf(utils.CodeNotFound, "%s %d not found", kind, id)
		}
		return err
	}
	return nil
}

// GetConversation gets the conversation of a fan and a performer
func (r *catalogRepository) GetConversation(ctx context.Context, userID, performerID uint64) (*model.Conversation, error) {
	var c model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND performer_id = ?", userID, performerID).
		First(&c).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ApplyLike records the event and moves both counters in one transaction
func (r *catalogRepository) ApplyLike(ctx context.Context, c LikeChange) (bool, error) {
	var table string
	switch c.ObjectType {
	case model.ReactionObjectFeed:
		table = model.Feed{}.TableName()
	case model.ReactionObjectVideo:
		table = model.Video{}.TableName()
	case model.ReactionObjectGallery:
		table = model.Gallery{}.TableName()
	default:
		return false, utils.Errorf(utils.CodeInvalidParam, "object type %q has no like counter", c.ObjectType)
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		marker := &model.ReactionCount{ReactionID: c.ReactionID, Event: c.Event, Delta: c.Delta}
		if err := tx.Create(marker).Error; err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return err
		}
		if err := incrCounter(tx, table, "total_likes", c.ObjectID, c.Delta); err != nil {
			return err
		}
		if c.PerformerID != 0 {
			if err := incrCounter(tx, model.Performer{}.TableName(), "total_likes", c.PerformerID, c.Delta); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// StopStreaming marks the performer's streams as not live
func (r *catalogRepository) StopStreaming(ctx context.Context, performerID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Stream{}).
		Where("performer_id = ? AND is_streaming = ?", performerID, true).
		Update("is_streaming", false)
	return result.RowsAffected, result.Error
}
