package utils

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "run", "console.pid"))

	require.NoError(t, p.Write())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// signal 0 only checks that the process exists
	assert.NoError(t, p.Signal(syscall.Signal(0)))

	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
	_, err = p.Read()
	assert.Error(t, err)
}

func TestPIDFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	p := NewPIDFile(path)

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	_, err := p.Read()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("-3\n"), 0o644))
	_, err = p.Read()
	assert.Error(t, err)
	assert.Error(t, p.Signal(syscall.SIGTERM))
}
