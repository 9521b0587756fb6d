package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppConstants(t *testing.T) {
	assert.Equal(t, "webconsole", AppName)
	assert.Equal(t, "webconsole", CommandName)
	assert.Equal(t, "webconsole.yaml", ConsoleYaml)
}
