package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/config"
)

type policy struct{}

func TestPath(t *testing.T) {
	assert.Equal(t, "/alice/HelloWorld/HelloWorld~1", Path("alice", "HelloWorld", "HelloWorld~1"))
	assert.Equal(t, "//HelloWorld/", Path("", "HelloWorld"))
}

func TestComponentName(t *testing.T) {
	assert.Equal(t, "github.com.amoylab.webconsole.internal.console.kvstore.policy", ComponentName(&policy{}))
	assert.Equal(t, ComponentName(policy{}), ComponentName(&policy{}))
}

// exerciseStore runs the behaviour every backend has to share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "/alice/c/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "/alice/c/1", `{"n":1}`))
	require.NoError(t, s.Put(ctx, "/alice/c/2", `{"n":2}`))
	require.NoError(t, s.Put(ctx, "/alice/other/1", `x`))
	require.NoError(t, s.Put(ctx, "/bob/c/1", `y`))
	require.NoError(t, s.Put(ctx, "/alice/c_x/1", `underscore`))

	v, err := s.Get(ctx, "/alice/c/1")
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, v)

	require.NoError(t, s.Put(ctx, "/alice/c/1", `{"n":3}`))
	v, err = s.Get(ctx, "/alice/c/1")
	require.NoError(t, err)
	assert.Equal(t, `{"n":3}`, v)

	got, err := s.Query(ctx, "/alice/c/")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/alice/c/1": `{"n":3}`, "/alice/c/2": `{"n":2}`}, got)

	require.NoError(t, s.Delete(ctx, "/alice/c/2"))
	require.NoError(t, s.Delete(ctx, "/alice/c/never"))
	got, err = s.Query(ctx, "/alice/c/")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), zap.NewNop(), config.RedisConfig{
		ClusterType: cnst.RedisClusterTypeSingle,
		Addr:        mr.Addr(),
		Prefix:      "test",
	})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	assert.True(t, mr.Exists("test:/alice/c/1"))
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	s, err := NewRedisStore(context.Background(), zap.NewNop(), config.RedisConfig{Addr: "127.0.0.1:0"})
	assert.Nil(t, s)
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), zap.NewNop(), config.RedisConfig{ClusterType: "ring"})
	assert.ErrorIs(t, err, cnst.ErrUnsupportedClusterType)
}

func TestDBStore(t *testing.T) {
	s, err := NewDBStore(zap.NewNop(), config.DatabaseConfig{
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(context.Background(), zap.NewNop(), &config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(context.Background(), zap.NewNop(), &config.StorageConfig{Type: "etcd"})
	assert.ErrorIs(t, err, cnst.ErrUnsupportedStoreType)

	_, err = NewStore(context.Background(), zap.NewNop(), &config.StorageConfig{
		Type:     "db",
		Database: config.DatabaseConfig{Type: "oracle"},
	})
	assert.Error(t, err)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `/a\*b\?/`, escapeGlob("/a*b?/"))
	assert.Equal(t, "/a!_b!%c!!/", escapeLike("/a_b%c!/"))
}
