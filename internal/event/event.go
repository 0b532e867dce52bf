// Package event defines the events exchanged over the bus: the channels,
// the event names and the typed payload carried by each pair.
package event

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Channels
const (
	ChannelTransaction   = "transaction"
	ChannelReaction      = "reaction"
	ChannelPayoutRequest = "payout-request"
	ChannelPerformer     = "performer"
	ChannelCategory      = "category"
	ChannelSocket        = "socket"
	ChannelFeed          = "feed"
	ChannelStream        = "stream"
)

// Event names
const (
	Created = "Created"
	Updated = "Updated"
	Deleted = "Deleted"

	PurchaseSucceeded = "PurchaseSucceeded"
	PurchaseFailed    = "PurchaseFailed"
	Refunded          = "Refunded"
	Activated         = "Activated"
	Disconnected      = "Disconnected"
)

// Event is what a handler receives. Payload holds the decoded typed value
// registered for (Channel, Name), or nil when the pair is unknown; Raw
// always holds the original JSON.
type Event struct {
	ID          string          `json:"id"`
	Channel     string          `json:"channel"`
	Name        string          `json:"event"`
	Raw         json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"published_at"`

	Payload interface{} `json:"-"`
}

// Encode serialises the envelope with data as its payload
func Encode(id, channel, name string, data interface{}, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s payload: %w", channel, name, err)
	}
	return json.Marshal(Event{
		ID:          id,
		Channel:     channel,
		Name:        name,
		Raw:         raw,
		PublishedAt: at,
	})
}

// Decode parses an envelope and decodes its payload through the registry
func Decode(b []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(b, &evt); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	factory, ok := lookup(evt.Channel, evt.Name)
	if !ok {
		return &evt, nil
	}
	payload := factory()
	if err := json.Unmarshal(evt.Raw, payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s payload: %w", evt.Channel, evt.Name, err)
	}
	evt.Payload = payload
	return &evt, nil
}

type key struct {
	channel string
	name    string
}

var (
	registryMu sync.RWMutex
	registry   = map[key]func() interface{}{}
)

// Register binds a payload factory to (channel, name). The factory must
// return a pointer.
func Register(channel, name string, factory func() interface{}) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key{channel, name}] = factory
}

func lookup(channel, name string) (func() interface{}, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[key{channel, name}]
	return f, ok
}

// Known reports whether a payload type is registered for the pair
func Known(channel, name string) bool {
	_, ok := lookup(channel, name)
	return ok
}
