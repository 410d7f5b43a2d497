package gen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeaseOwnerIsUnique(t *testing.T) {
	w := NewWorkerID()
	node, err := NewSnowflakeNode(w.NodeID())
	require.NoError(t, err)

	a := node.LeaseOwner(w)
	b := node.LeaseOwner(w)
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, string(w)+":"))
}

func TestNodeIDInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := NewWorkerID().NodeID()
		require.GreaterOrEqual(t, id, int64(0))
		require.Less(t, id, int64(1024))
	}
}
