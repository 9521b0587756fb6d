package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisClusterTypeConstants(t *testing.T) {
	assert.Equal(t, "sentinel", RedisClusterTypeSentinel)
	assert.Equal(t, "cluster", RedisClusterTypeCluster)
	assert.Equal(t, "single", RedisClusterTypeSingle)
}

func TestStoreTypeConstants(t *testing.T) {
	assert.Equal(t, StoreType("memory"), StoreTypeMemory)
	assert.Equal(t, StoreType("redis"), StoreTypeRedis)
	assert.Equal(t, StoreType("db"), StoreTypeDB)
	assert.Equal(t, DatabaseType("sqlite"), DatabaseSQLite)
}
