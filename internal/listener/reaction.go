package listener

import (
	"context"
	"fmt"

	"fanhub/internal/event"
	"fanhub/internal/model"
	"fanhub/internal/notification"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// ReactionListener keeps the like counters of content and performers
type ReactionListener struct {
	catalog    repository.CatalogRepository
	performers repository.PerformerRepository
	dedupe     Claimer
	mailer     notification.Mailer
}

// NewReactionListener creates a reaction listener
func NewReactionListener(catalog repository.CatalogRepository, performers repository.PerformerRepository, dedupe Claimer, mailer notification.Mailer) *ReactionListener {
	return &ReactionListener{catalog: catalog, performers: performers, dedupe: dedupe, mailer: mailer}
}

func (l *ReactionListener) subscription() subscription {
	return subscription{channel: event.ChannelReaction, topic: TopicReactionCounter, handler: l.Handle}
}

// Handle moves both counters once per (reaction, event). The counters and
// the applied marker commit together, so a redelivery either finds the
// marker or applies everything.
func (l *ReactionListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.Created && evt.Name != event.Deleted {
		return nil
	}
	p, ok := evt.Payload.(*event.ReactionPayload)
	if !ok || p.Action != model.ReactionActionLike {
		return nil
	}
	switch p.ObjectType {
	case model.ReactionObjectFeed, model.ReactionObjectVideo, model.ReactionObjectGallery:
	default:
		return nil
	}

	delta := int64(1)
	if evt.Name == event.Deleted {
		delta = -1
	}

	applied, err := l.catalog.ApplyLike(ctx, repository.LikeChange{
		ReactionID:  p.ReactionID,
		Event:       evt.Name,
		ObjectType:  p.ObjectType,
		ObjectID:    p.ObjectID,
		PerformerID: p.PerformerID,
		Delta:       delta,
	})
	if err != nil {
		return fmt.Errorf("count like on %s %d: %w", p.ObjectType, p.ObjectID, err)
	}
	if !applied {
		log.WithContext(ctx).WithField("reaction_id", p.ReactionID).Debug("Reaction already counted")
	}

	if evt.Name == event.Created {
		l.notify(ctx, p)
	}
	return nil
}

func (l *ReactionListener) notify(ctx context.Context, p *event.ReactionPayload) {
	if p.PerformerID == 0 {
		return
	}
	key := fmt.Sprintf("reaction-mail:%d", p.ReactionID)
	claimed, err := l.dedupe.Claim(ctx, key)
	if err != nil {
		log.WithContext(ctx).WithError(err).WithField("key", key).Warn("Dedupe unavailable, skipping reaction email")
		return
	}
	if !claimed {
		return
	}
	performer, err := l.performers.GetByID(ctx, p.PerformerID)
	if err != nil || performer.Email == nil {
		return
	}
	sendBestEffort(ctx, l.mailer, &notification.Message{
		To:       *performer.Email,
		Subject:  "Someone liked your content",
		Template: notification.TemplateNewReaction,
		Data: map[string]interface{}{
			"object_type": p.ObjectType,
			"object_id":   p.ObjectID,
			"user_id":     p.UserID,
		},
	})
}
