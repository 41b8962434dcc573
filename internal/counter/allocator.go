// Package counter issues sequential customer codes backed by a flat counter file.
package counter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
	"github.com/jmehdipour/loyalty-gateway/internal/util"
	"go.uber.org/zap"
)

// ErrBackwards is returned by Set when the new value would reissue codes.
var ErrBackwards = errors.New("counter: refusing to move backwards")

// FileAllocator serializes every read-increment-write of the counter file.
type FileAllocator struct {
	mu     sync.Mutex
	path   string
	width  int
	newID  func() string
}

func NewFileAllocator(path string, width int) *FileAllocator {
	if width <= 0 {
		width = 6
	}
	return &FileAllocator{path: path, width: width, newID: util.NewID}
}

// NextCode returns the next zero-padded code. On I/O failure it logs and returns a
// "T"-prefixed ULID instead of failing; those never repeat and never look numeric.
func (a *FileAllocator) NextCode(ctx context.Context) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return a.fallback(err)
	}

	cur, err := a.read()
	if err != nil {
		return a.fallback(err)
	}
	next := cur + 1
	if err := a.write(next); err != nil {
		return a.fallback(err)
	}
	return a.format(next)
}

// Current returns the last issued sequence number (0 when nothing was issued).
func (a *FileAllocator) Current() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read()
}

// Set overwrites the counter. Lower values are rejected unless force is set.
func (a *FileAllocator) Set(n int64, force bool) error {
	if n < 0 {
		return fmt.Errorf("counter: negative value %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cur, err := a.read()
	if err != nil {
		return err
	}
	if n < cur && !force {
		return fmt.Errorf("%w: current=%d requested=%d", ErrBackwards, cur, n)
	}
	return a.write(n)
}

func (a *FileAllocator) format(n int64) string {
	return fmt.Sprintf("%0*d", a.width, n)
}

func (a *FileAllocator) fallback(cause error) string {
	code := "T" + a.newID()
	metrics.AllocatorFallbacks.Inc()
	logger.Log.Error("counter unavailable, issuing fallback code",
		zap.String("path", a.path),
		zap.String("code", code),
		zap.Error(cause),
	)
	return code
}

func (a *FileAllocator) read() (int64, error) {
	b, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("corrupt counter file %s: %q", a.path, s)
	}
	return n, nil
}

// write replaces the file atomically so a crash never leaves a torn value.
func (a *FileAllocator) write(n int64) error {
	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create counter dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".counter-*")
	if err != nil {
		return fmt.Errorf("create temp counter: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(strconv.FormatInt(n, 10) + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write counter: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync counter: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close counter: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.path); err != nil {
		return fmt.Errorf("replace counter: %w", err)
	}
	return nil
}
