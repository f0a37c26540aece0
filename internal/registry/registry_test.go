package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gammanik/replistore/internal/config"
)

func testConfig(t *testing.T, ids ...int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.AcceptPoll = 50 * time.Millisecond
	cfg.Nodes = nil
	root := t.TempDir()
	for _, id := range ids {
		cfg.Nodes = append(cfg.Nodes, config.Node{
			ID:  id,
			Dir: filepath.Join(root, "node", string(rune('0'+id))),
		})
	}
	return cfg
}

func TestRegistryOrdersByID(t *testing.T) {
	r, err := New(testConfig(t, 3, 1, 2), nil)
	require.NoError(t, err)

	var ids []int
	for _, n := range r.Nodes() {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestRegistryLifecycle(t *testing.T) {
	r, err := New(testConfig(t, 1, 2), nil)
	require.NoError(t, err)
	t.Cleanup(r.StopAll)

	for _, st := range r.Statuses() {
		assert.False(t, st.Running)
	}

	require.NoError(t, r.StartAll())
	for _, st := range r.Statuses() {
		assert.True(t, st.Running)
		assert.NotZero(t, st.Port)
	}

	eps := r.Endpoints()
	require.Len(t, eps, 2)
	assert.Equal(t, 1, eps[0].ID)
	n1, err := r.Node(1)
	require.NoError(t, err)
	assert.Equal(t, n1.Addr(), eps[0].Addr)

	require.NoError(t, r.Stop(2))
	n2, err := r.Node(2)
	require.NoError(t, err)
	assert.False(t, n2.Running())
	assert.True(t, n1.Running())

	require.NoError(t, r.Start(2))
	assert.True(t, n2.Running())

	r.StopAll()
	for _, st := range r.Statuses() {
		assert.False(t, st.Running)
	}
}

func TestRegistryUnknownNode(t *testing.T) {
	r, err := New(testConfig(t, 1), nil)
	require.NoError(t, err)

	_, err = r.Node(9)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.ErrorIs(t, r.Start(9), ErrUnknownNode)
	assert.ErrorIs(t, r.Stop(9), ErrUnknownNode)
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Nodes = append(cfg.Nodes, cfg.Nodes[0])

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrDuplicateNodeID)
}
