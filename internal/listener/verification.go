package listener

import (
	"context"
	"fmt"

	"fanhub/internal/event"
	"fanhub/internal/notification"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// VerificationListener emails a performer whose documents were approved
type VerificationListener struct {
	performers repository.PerformerRepository
	dedupe     Claimer
	mailer     notification.Mailer
}

// NewVerificationListener creates a verification listener
func NewVerificationListener(performers repository.PerformerRepository, dedupe Claimer, mailer notification.Mailer) *VerificationListener {
	return &VerificationListener{performers: performers, dedupe: dedupe, mailer: mailer}
}

func (l *VerificationListener) subscription() subscription {
	return subscription{channel: event.ChannelPerformer, topic: TopicAccountVerification, handler: l.Handle}
}

// Handle sends the approval email when the flag goes from false to true
func (l *VerificationListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.Updated {
		return nil
	}
	p, ok := evt.Payload.(*event.PerformerPayload)
	if !ok || !p.VerifiedDocument || p.OldVerifiedDocument {
		return nil
	}

	key := fmt.Sprintf("verified-mail:%d", p.PerformerID)
	claimed, err := l.dedupe.Claim(ctx, key)
	if err != nil {
		log.WithContext(ctx).WithError(err).WithField("performer_id", p.PerformerID).Warn("Dedupe unavailable, skipping approval email")
		return nil
	}
	if !claimed {
		return nil
	}

	to, name := p.Email, p.Name
	if to == "" {
		performer, err := l.performers.GetByID(ctx, p.PerformerID)
		if err == nil && performer.Email != nil {
			to, name = *performer.Email, performer.Name
		}
	}

	sent := sendBestEffort(ctx, l.mailer, &notification.Message{
		To:       to,
		Subject:  "Your account is verified",
		Template: notification.TemplateAccountVerified,
		Data:     map[string]interface{}{"name": name},
	})
	if !sent {
		if err := l.dedupe.Release(ctx, key); err != nil {
			log.WithContext(ctx).WithError(err).WithField("key", key).Warn("Failed to release approval email claim")
		}
	}
	return nil
}
