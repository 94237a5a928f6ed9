package session

import (
	"context"
	"testing"

	"cdb-features/internal/blacklist"
	"cdb-features/internal/resolve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetKeepsIDAllocator(t *testing.T) {
	h := NewHolder(New(nil, nil))
	first := h.Current()
	first.IDs.Next()
	first.IDs.Next()
	first.Resolver.Instances.Register("m", 1, "r")

	old := h.Reset(nil)
	require.Same(t, first, old)
	cur := h.Current()
	assert.NotEqual(t, first.ID, cur.ID)
	assert.Equal(t, int64(2), cur.IDs.Next())
	assert.Equal(t, 0, cur.Resolver.Instances.Len())
	assert.Same(t, first.Blacklist, cur.Blacklist)
	assert.Same(t, first.Origins, cur.Origins)
}

func TestResetWithFreshBlacklist(t *testing.T) {
	ctx := context.Background()
	h := NewHolder(New(nil, nil))
	h.Current().Blacklist.Blacklist(ctx, "tile")
	h.Reset(blacklist.NewMemory())
	assert.False(t, h.Current().Blacklist.IsBlacklisted(ctx, "tile"))
}

func TestStats(t *testing.T) {
	s := New(nil, nil)
	s.Resolver.Instances.Register("a", 1, "r")
	s.Resolver.Orphans.Register("b", resolve.Orphan{LOD: 2})
	st := s.Stats(3)
	assert.Equal(t, 1, st.Instances)
	assert.Equal(t, 1, st.Orphans)
	assert.Equal(t, 3, st.Blacklisted)
	assert.Equal(t, s.ID.String(), st.ID)
}
