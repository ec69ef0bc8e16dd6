package vfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachFS(t *testing.T, check func(t *testing.T, fs FileSystem)) {
	t.Run("MemDir", func(t *testing.T) {
		check(t, CreateMemDir())
	})
	t.Run("FsDir", func(t *testing.T) {
		fs, err := CreateTempDir()
		require.NoError(t, err)
		defer fs.Close()
		check(t, fs)
	})
}

func TestFileSystem_Write(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		f, err := fs.CreateAtomicFile("foo")
		require.NoError(t, err)
		_, err = io.WriteString(f, "hello")
		require.NoError(t, err)
		require.NoError(t, f.Commit())
		require.NoError(t, f.Close())

		r, err := fs.OpenFile("foo")
		require.NoError(t, err)
		defer r.Close()
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))

		size, err := fs.FileSize("foo")
		require.NoError(t, err)
		assert.Equal(t, int64(5), size)
	})
}

func TestFileSystem_WriteWithoutCommit(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		f, err := fs.CreateAtomicFile("foo")
		require.NoError(t, err)
		_, err = io.WriteString(f, "hello")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		assert.False(t, fs.Exists("foo"))
		_, err = fs.OpenFile("foo")
		assert.True(t, IsNotExist(err), "missing file should report not-exist, got %v", err)
	})
}

func TestFileSystem_ListAndRemove(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		for _, name := range []string{"foo", "bar"} {
			require.NoError(t, WriteFile(fs, name, func(w io.Writer) error {
				_, err := io.WriteString(w, name)
				return err
			}))
		}
		f, err := fs.CreateAtomicFile("baz")
		require.NoError(t, err)
		f.Close()

		files, err := fs.ListFiles()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"bar", "foo"}, files)

		require.NoError(t, fs.Remove("foo"))
		require.NoError(t, fs.Remove("foo"), "removing a missing file is not an error")
		files, err = fs.ListFiles()
		require.NoError(t, err)
		assert.Equal(t, []string{"bar"}, files)

		data, err := ReadFile(fs, "bar")
		require.NoError(t, err)
		assert.Equal(t, "bar", string(data))
	})
}

func TestLock(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		l1 := fs.Lock("write.lock")
		l2 := fs.Lock("write.lock")

		require.NoError(t, Obtain(l1, time.Second))
		assert.True(t, l2.IsLocked())

		start := time.Now()
		err := Obtain(l2, 50*time.Millisecond)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockTimeout))
		assert.True(t, time.Since(start) >= 50*time.Millisecond)

		require.NoError(t, l2.Unlock(), "unlock of a lock we do not hold is a no-op")
		assert.True(t, l1.IsLocked())

		require.NoError(t, l1.Unlock())
		assert.False(t, l1.IsLocked())

		called := false
		err = With(l2, time.Second, func() error {
			called = true
			assert.True(t, l1.IsLocked())
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.False(t, l2.IsLocked())
	})
}

// breakLock replaces the owner of a held lock, as if it had been removed and taken by someone else.
func breakLock(t *testing.T, fs FileSystem, name string) {
	switch d := fs.(type) {
	case *memDir:
		d.mu.Lock()
		d.locks[name] = "intruder"
		d.mu.Unlock()
	case *fsDir:
		require.NoError(t, os.WriteFile(filepath.Join(d.path, name), []byte("intruder 1\n"), 0644))
	default:
		t.Fatalf("unknown file system %T", fs)
	}
}

func TestLock_Unlock_NotOwned(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		l1 := fs.Lock("write.lock")
		require.NoError(t, Obtain(l1, time.Second))
		breakLock(t, fs, "write.lock")

		err := l1.Unlock()
		assert.True(t, errors.Is(err, ErrLockNotOwned), "expected lock not owned, got %v", err)
		assert.True(t, l1.IsLocked(), "a lock held by another owner is left in place")

		l2 := fs.Lock("write.lock")
		ok, err := l2.TryLock()
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLock_Unlock_Removed(t *testing.T) {
	forEachFS(t, func(t *testing.T, fs FileSystem) {
		l1 := fs.Lock("write.lock")
		require.NoError(t, Obtain(l1, time.Second))
		require.NoError(t, l1.Unlock())
		require.NoError(t, l1.Unlock(), "second unlock is a no-op")

		l2 := fs.Lock("write.lock")
		require.NoError(t, Obtain(l2, time.Second))
		require.NoError(t, l1.Unlock(), "unlock of a released lock does not touch the new owner")
		assert.True(t, l2.IsLocked())
		require.NoError(t, l2.Unlock())
		assert.False(t, l2.IsLocked())
	})
}
