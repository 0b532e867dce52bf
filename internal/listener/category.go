package listener

import (
	"context"

	"fanhub/internal/event"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// CategoryListener strips deleted categories from performers
type CategoryListener struct {
	performers repository.PerformerRepository
	batchSize  int
}

// NewCategoryListener creates a category listener
func NewCategoryListener(performers repository.PerformerRepository, batchSize int) *CategoryListener {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CategoryListener{performers: performers, batchSize: batchSize}
}

func (l *CategoryListener) subscription() subscription {
	return subscription{channel: event.ChannelCategory, topic: TopicCategoryCascade, handler: l.Handle}
}

// Handle removes the category id everywhere. Running it twice finds
// nothing left to change.
func (l *CategoryListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.Deleted {
		return nil
	}
	p, ok := evt.Payload.(*event.CategoryPayload)
	if !ok || p.CategoryID == 0 {
		return nil
	}

	n, err := l.performers.RemoveCategory(ctx, p.CategoryID, l.batchSize)
	if err != nil {
		return err
	}
	log.WithContext(ctx).WithFields(log.Fields{
		"category_id": p.CategoryID,
		"performers":  n,
	}).Info("Category removed from performers")
	return nil
}
