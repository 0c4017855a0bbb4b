package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator mints time-ordered identifiers for pending carries.
type Generator interface {
	NewID() string
}

// Snowflake wraps a single snowflake node.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator for the given node ID (0-1023).
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Snowflake{node: node}, nil
}

// NewID returns the next ID in decimal form. IDs from one node are
// strictly increasing.
func (s *Snowflake) NewID() string {
	return s.node.Generate().String()
}
