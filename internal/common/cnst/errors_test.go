package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorConstants(t *testing.T) {
	assert.Equal(t, "unsupported store type", ErrUnsupportedStoreType.Error())
	assert.Equal(t, "invalid database type", ErrInvalidDatabaseType.Error())
	assert.Equal(t, "unsupported redis cluster type", ErrUnsupportedClusterType.Error())
}
