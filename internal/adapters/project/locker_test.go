package project_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/adapters/project"
	"go.trai.ch/compak/internal/core/domain"
)

func TestLocker_AcquireRelease(t *testing.T) {
	root := t.TempDir()
	l := project.NewLocker()

	release, err := l.Acquire(context.Background(), root, "tx-1")
	require.NoError(t, err)

	data, err := os.ReadFile(domain.ProjectLockPath(root))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tx-1")

	require.NoError(t, release())
	require.NoError(t, release(), "release is idempotent")

	_, err = os.Stat(domain.ProjectLockPath(root))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocker_TimesOutWhileHeldByAnotherProcess(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, domain.CompakDirName), 0o750))
	holder := fmt.Sprintf("compak other %d\n", os.Getpid())
	require.NoError(t, os.WriteFile(domain.ProjectLockPath(root), []byte(holder), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := project.NewLocker().Acquire(ctx, root, "tx-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProjectLocked)
}

func TestLocker_ReclaimsLockOfDeadProcess(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, domain.CompakDirName), 0o750))
	require.NoError(t, os.WriteFile(domain.ProjectLockPath(root), []byte("compak crashed 2147483646\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release, err := project.NewLocker().Acquire(ctx, root, "tx-3")
	require.NoError(t, err)

	data, err := os.ReadFile(domain.ProjectLockPath(root))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tx-3")
	require.NoError(t, release())

	entries, err := os.ReadDir(filepath.Join(root, domain.CompakDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocker_KeepsLockWithoutPID(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, domain.CompakDirName), 0o750))
	require.NoError(t, os.WriteFile(domain.ProjectLockPath(root), []byte("garbage\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := project.NewLocker().Acquire(ctx, root, "tx-4")
	assert.ErrorIs(t, err, domain.ErrProjectLocked)
}

func TestLocker_WaitsForRelease(t *testing.T) {
	root := t.TempDir()
	first := project.NewLocker()
	second := project.NewLocker()

	release, err := first.Acquire(context.Background(), root, "tx-1")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rel, err := second.Acquire(ctx, root, "tx-2")
		if err == nil {
			err = rel()
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, release())

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second transaction never acquired the lock")
	}
}

func TestLocker_SerializesWithinProcess(t *testing.T) {
	root := t.TempDir()
	l := project.NewLocker()

	release, err := l.Acquire(context.Background(), root, "tx-1")
	require.NoError(t, err)
	defer release() //nolint:errcheck // Released explicitly below

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, root, "tx-2")
	assert.ErrorIs(t, err, domain.ErrProjectLocked)
}
