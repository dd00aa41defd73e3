package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// The API server, the worker, and the CLI each use a distinct node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 ID for analyses, runs and usage records.
func New() int64 {
	return node.Generate().Int64()
}

// Parse converts the decimal form used in URLs back into an ID.
func Parse(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
