package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAcquireEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	guard := New(dir)

	require.NoError(t, guard.Acquire())
	defer guard.Release()

	data, err := os.ReadFile(filepath.Join(dir, PIDFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}

func TestGuardAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deep", "data")
	guard := New(dir)

	require.NoError(t, guard.Acquire())
	defer guard.Release()

	_, err := os.Stat(filepath.Join(dir, PIDFileName))
	assert.NoError(t, err)
}

func TestGuardAcquireStalePID(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, PIDFileName)
	// A PID far above any default pid_max.
	require.NoError(t, os.WriteFile(pidFile, []byte("99999999"), 0o644))

	guard := New(dir)
	require.NoError(t, guard.Acquire())
	defer guard.Release()

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data), "stale claim should be replaced")
}

func TestGuardAcquireMalformedPID(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, PIDFileName)
	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0o644))

	guard := New(dir)
	require.NoError(t, guard.Acquire())
	defer guard.Release()
}

func TestGuardAcquireLiveHolder(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, PIDFileName)
	// The test process itself is a holder that is definitely alive.
	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644))

	guard := New(dir)
	err := guard.Acquire()
	require.Error(t, err)

	var running *AlreadyRunningError
	require.True(t, errors.As(err, &running))
	assert.Equal(t, os.Getpid(), running.PID)
	assert.Contains(t, err.Error(), "already running")
}

func TestGuardRelease(t *testing.T) {
	dir := t.TempDir()
	guard := New(dir)

	require.NoError(t, guard.Acquire())
	guard.Release()

	_, err := os.Stat(filepath.Join(dir, PIDFileName))
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is harmless.
	guard.Release()
}
