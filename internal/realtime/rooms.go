// Package realtime keeps socket room membership in Redis and fans system
// messages out to room members over Redis pub/sub, so any instance can
// clean up after an actor connected to another one.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Actor is a connected user or performer
type Actor struct {
	Type string `json:"type"`
	ID   uint64 `json:"id"`
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Type, a.ID)
}

// System message types
const (
	MessageLeft = "left"
)

// SystemMessage is broadcast to a room
type SystemMessage struct {
	Type   string    `json:"type"`
	Room   string    `json:"room"`
	Actor  Actor     `json:"actor"`
	SentAt time.Time `json:"sent_at"`
}

// Rooms is the room registry
type Rooms struct {
	client redis.UniversalClient
	prefix string
}

// NewRooms creates a registry with keys under prefix
func NewRooms(client redis.UniversalClient, prefix string) *Rooms {
	return &Rooms{client: client, prefix: prefix}
}

func (r *Rooms) membersKey(room string) string {
	return r.prefix + "room:" + room + ":members"
}

func (r *Rooms) actorKey(a Actor) string {
	return r.prefix + "actor:" + a.String() + ":rooms"
}

// Channel returns the pub/sub channel of a room
func (r *Rooms) Channel(room string) string {
	return r.prefix + "room:" + room
}

// Join adds actor to room
func (r *Rooms) Join(ctx context.Context, room string, a Actor) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.membersKey(room), a.String())
	pipe.SAdd(ctx, r.actorKey(a), room)
	_, err := pipe.Exec(ctx)
	return err
}

// Members lists the actors in room
func (r *Rooms) Members(ctx context.Context, room string) ([]string, error) {
	return r.client.SMembers(ctx, r.membersKey(room)).Result()
}

// RoomsOf lists the rooms actor is in
func (r *Rooms) RoomsOf(ctx context.Context, a Actor) ([]string, error) {
	return r.client.SMembers(ctx, r.actorKey(a)).Result()
}

// LeaveAll removes actor from every room it joined and returns those rooms.
// Running it again returns nothing.
func (r *Rooms) LeaveAll(ctx context.Context, a Actor) ([]string, error) {
	rooms, err := r.RoomsOf(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("list rooms of %s: %w", a, err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	pipe := r.client.TxPipeline()
	for _, room := range rooms {
		pipe.SRem(ctx, r.membersKey(room), a.String())
	}
	pipe.Del(ctx, r.actorKey(a))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("leave rooms of %s: %w", a, err)
	}
	return rooms, nil
}

// Broadcast publishes a system message to room
func (r *Rooms) Broadcast(ctx context.Context, msg *SystemMessage) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(msg.Room), b).Err()
}

// Subscribe listens to the system messages of rooms
func (r *Rooms) Subscribe(ctx context.Context, rooms ...string) *redis.PubSub {
	channels := make([]string, len(rooms))
	for i, room := range rooms {
		channels[i] = r.Channel(room)
	}
	return r.client.Subscribe(ctx, channels...)
}
