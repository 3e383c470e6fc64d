package resolvecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheNoOps(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	report, found, err := c.Get(context.Background(), "digest-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, report)

	assert.NoError(t, c.Set(context.Background(), "digest-1", nil, 0))
	assert.NoError(t, c.Invalidate(context.Background(), "digest-1"))
	assert.NoError(t, c.Close())
}

func TestKeyNamespacesDigest(t *testing.T) {
	assert.Equal(t, "plugify:resolve:abc123", Key("abc123"))
}
