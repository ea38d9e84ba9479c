package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire_CreatesFileAndWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")

	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Release()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestAcquire_SecondAttemptReturnsErrLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path)
	require.True(t, errors.Is(err, ErrLocked))
}

func TestRelease_AllowsReacquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(path)
	require.NoError(t, err)
	defer second.Release()
}

func TestRelease_NilLockIsNoop(t *testing.T) {
	var lock *Lock
	require.NoError(t, lock.Release())
}

func TestRelease_DoubleReleaseDoesNotPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")
	lock, err := Acquire(path)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	_ = lock.Release()
}
