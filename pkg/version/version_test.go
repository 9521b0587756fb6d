package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_Embedded(t *testing.T) {
	s := Get()
	assert.NotEmpty(t, s)
	assert.Equal(t, byte('v'), s[0])
	assert.NotContains(t, s, "\n")
}

func TestGet_Override(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "v9.9.9"
	assert.Equal(t, "v9.9.9", Get())
}
