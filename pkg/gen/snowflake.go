package gen

import (
	"hash/fnv"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(
		NewWorkerID,
		func(w WorkerID) (*SnowflakeNode, error) { return NewSnowflakeNode(w.NodeID()) },
	),
)

// WorkerID identifies one running process. It is generated once at start.
type WorkerID string

func NewWorkerID() WorkerID {
	return WorkerID(uuid.NewString())
}

// NodeID folds the worker id into the snowflake node range.
func (w WorkerID) NodeID() int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return int64(h.Sum32() % uint32(1<<snowflake.NodeBits))
}

type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode(nodeID int64) (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) GenerateID() snowflake.ID {
	return s.node.Generate()
}

// LeaseOwner returns a fresh lease token of the form <worker-id>:<snowflake>.
func (s *SnowflakeNode) LeaseOwner(w WorkerID) string {
	return string(w) + ":" + s.node.Generate().String()
}
