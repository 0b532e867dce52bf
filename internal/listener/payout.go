package listener

import (
	"context"

	"fanhub/internal/event"
	"fanhub/internal/model"
	"fanhub/internal/notification"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// PayoutListener debits a performer once a payout request is done
type PayoutListener struct {
	payouts    repository.PayoutRepository
	performers repository.PerformerRepository
	mailer     notification.Mailer
}

// NewPayoutListener creates a payout listener
func NewPayoutListener(payouts repository.PayoutRepository, performers repository.PerformerRepository, mailer notification.Mailer) *PayoutListener {
	return &PayoutListener{payouts: payouts, performers: performers, mailer: mailer}
}

func (l *PayoutListener) subscription() subscription {
	return subscription{channel: event.ChannelPayoutRequest, topic: TopicPayoutCompletion, handler: l.Handle}
}

// Handle reacts to the pending -> done transition only. The
// balance_deducted flag keeps a redelivery from debiting twice.
func (l *PayoutListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.Updated {
		return nil
	}
	p, ok := evt.Payload.(*event.PayoutRequestPayload)
	if !ok || p.Status != model.PayoutStatusDone || p.OldStatus != model.PayoutStatusPending {
		return nil
	}

	applied, err := l.payouts.Complete(ctx, p.RequestID)
	if err != nil {
		return err
	}
	if !applied {
		log.WithContext(ctx).WithField("request_id", p.RequestID).Debug("Payout already deducted")
		return nil
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"request_id":   p.RequestID,
		"performer_id": p.PerformerID,
		"tokens":       p.RequestTokens,
	}).Info("Payout deducted")

	performer, err := l.performers.GetByID(ctx, p.PerformerID)
	if err != nil || performer.Email == nil {
		return nil
	}
	sendBestEffort(ctx, l.mailer, &notification.Message{
		To:       *performer.Email,
		Subject:  "Your payout is on its way",
		Template: notification.TemplatePayoutCompleted,
		Data: map[string]interface{}{
			"request_id": p.RequestID,
			"tokens":     p.RequestTokens,
		},
	})
	return nil
}
