// Package snowflake issues time-ordered 63-bit identifiers. Transaction ids
// come from here so they are known before the row is written and sort by
// creation time across instances.
package snowflake

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds
	Epoch int64 = 1704067200000

	// NodeBits and StepBits share the 22 low bits
	NodeBits uint8 = 10
	StepBits uint8 = 12

	// MaxNode is the largest usable worker id
	MaxNode = -1 ^ (-1 << NodeBits)

	stepMask  = -1 ^ (-1 << StepBits)
	timeShift = NodeBits + StepBits
	nodeShift = StepBits
)

// IDGenerator is safe for concurrent use
type IDGenerator struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	step      int64
	now       func() time.Time
}

// NewIDGenerator creates a generator for worker nodeID
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	if nodeID < 0 || nodeID > MaxNode {
		return nil, fmt.Errorf("invalid node ID %d, must be within [0, %d]", nodeID, MaxNode)
	}
	return &IDGenerator{nodeID: nodeID, now: time.Now}, nil
}

// NextID generates a new ID
func (g *IDGenerator) NextID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now < g.timestamp {
		// clock moved backwards, keep issuing from the last timestamp
		now = g.timestamp
	}

	if g.timestamp == now {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			for now <= g.timestamp {
				now = g.now().UnixMilli()
			}
		}
	} else {
		g.step = 0
	}
	g.timestamp = now

	return uint64(((now - Epoch) << timeShift) | (g.nodeID << nodeShift) | g.step)
}

// ID is a decoded identifier
type ID struct {
	Time   time.Time
	NodeID int64
	Step   int64
}

// Parse splits an id into its parts
func Parse(id uint64) ID {
	v := int64(id)
	return ID{
		Time:   time.UnixMilli((v >> timeShift) + Epoch).UTC(),
		NodeID: (v >> nodeShift) & MaxNode,
		Step:   v & stepMask,
	}
}
