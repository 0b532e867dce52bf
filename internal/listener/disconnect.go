package listener

import (
	"context"
	"fmt"

	"fanhub/internal/event"
	"fanhub/internal/realtime"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// DisconnectListener cleans up after the last socket of an actor closed
type DisconnectListener struct {
	rooms      RoomRegistry
	catalog    repository.CatalogRepository
	performers repository.PerformerRepository
}

// NewDisconnectListener creates a disconnect listener
func NewDisconnectListener(rooms RoomRegistry, catalog repository.CatalogRepository, performers repository.PerformerRepository) *DisconnectListener {
	return &DisconnectListener{rooms: rooms, catalog: catalog, performers: performers}
}

func (l *DisconnectListener) subscription() subscription {
	return subscription{channel: event.ChannelSocket, topic: TopicDisconnectCleanup, handler: l.Handle}
}

// Handle leaves every room, tells each room and takes a performer offline
func (l *DisconnectListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.Disconnected {
		return nil
	}
	p, ok := evt.Payload.(*event.DisconnectPayload)
	if !ok || p.ActorID == 0 {
		return nil
	}
	actor := realtime.Actor{Type: p.ActorType, ID: p.ActorID}

	rooms, err := l.rooms.LeaveAll(ctx, actor)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		msg := &realtime.SystemMessage{Type: realtime.MessageLeft, Room: room, Actor: actor}
		if err := l.rooms.Broadcast(ctx, msg); err != nil {
			log.WithContext(ctx).WithError(err).WithFields(log.Fields{
				"room":  room,
				"actor": actor.String(),
			}).Warn("Failed to broadcast leave message")
		}
	}

	if p.ActorType != event.ActorPerformer {
		return nil
	}
	stopped, err := l.catalog.StopStreaming(ctx, p.ActorID)
	if err != nil {
		return fmt.Errorf("stop streams of performer %d: %w", p.ActorID, err)
	}
	if err := l.performers.SetOnline(ctx, p.ActorID, false); err != nil {
		return fmt.Errorf("set performer %d offline: %w", p.ActorID, err)
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"performer_id": p.ActorID,
		"rooms":        len(rooms),
		"streams":      stopped,
	}).Info("Performer disconnected")
	return nil
}
