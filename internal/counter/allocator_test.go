package counter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T) *FileAllocator {
	t.Helper()
	return NewFileAllocator(filepath.Join(t.TempDir(), "data", "counter"), 6)
}

func TestSequentialCodesStrictlyIncrease(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	prev := ""
	for i := 1; i <= 50; i++ {
		code := a.NextCode(ctx)
		require.Len(t, code, 6)
		require.Greater(t, code, prev)
		prev = code
	}
	assert.Equal(t, "000050", prev)

	cur, err := a.Current()
	require.NoError(t, err)
	assert.EqualValues(t, 50, cur)
}

func TestConcurrentCodesAreDistinct(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	const n = 64
	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = a.NextCode(ctx)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		assert.False(t, strings.HasPrefix(c, "T"), "unexpected fallback code %s", c)
		seen[c] = true
	}
	cur, err := a.Current()
	require.NoError(t, err)
	assert.EqualValues(t, n, cur)
}

func TestTwoConcurrentRegistrationsOnEmptyCounter(t *testing.T) {
	a := newAllocator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var c1, c2 string
	wg.Add(2)
	go func() { defer wg.Done(); c1 = a.NextCode(ctx) }()
	go func() { defer wg.Done(); c2 = a.NextCode(ctx) }()
	wg.Wait()

	assert.NotEqual(t, c1, c2)
	assert.ElementsMatch(t, []string{"000001", "000002"}, []string{c1, c2})
}

func TestResumesFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	require.NoError(t, os.WriteFile(path, []byte("41\n"), 0o644))

	a := NewFileAllocator(path, 6)
	assert.Equal(t, "000042", a.NextCode(context.Background()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(b))
}

func TestFallbackOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o644))

	a := NewFileAllocator(path, 6)
	a.newID = func() string { return "01ARZ3NDEKTSV4RRFFQ69G5FAV" }

	code := a.NextCode(context.Background())
	assert.Equal(t, "T01ARZ3NDEKTSV4RRFFQ69G5FAV", code)
}

func TestFallbackOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// parent of the counter path is a regular file, so MkdirAll fails
	a := NewFileAllocator(filepath.Join(blocker, "counter"), 6)
	code := a.NextCode(context.Background())
	assert.True(t, strings.HasPrefix(code, "T"), code)
	assert.Len(t, code, 27)
}

func TestFallbackCodesAreDistinct(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	a := NewFileAllocator(filepath.Join(blocker, "counter"), 6)

	// back to back calls land in the same millisecond
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code := a.NextCode(context.Background())
		require.True(t, strings.HasPrefix(code, "T"), code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestSet(t *testing.T) {
	a := newAllocator(t)
	require.NoError(t, a.Set(100, false))
	assert.Equal(t, "000101", a.NextCode(context.Background()))

	err := a.Set(5, false)
	assert.ErrorIs(t, err, ErrBackwards)

	require.NoError(t, a.Set(5, true))
	assert.Equal(t, "000006", a.NextCode(context.Background()))

	assert.Error(t, a.Set(-1, true))
}
