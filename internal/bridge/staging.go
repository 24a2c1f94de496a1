package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zlev67/filejumpfs/internal/metrics"
	"github.com/zlev67/filejumpfs/pkg/filejump"
	"github.com/zlev67/filejumpfs/pkg/logger"
)

// ErrBadHandle is returned for operations on an unknown file handle.
var ErrBadHandle = errors.New("unknown file handle")

// handleInfo tracks one open handle. The per-handle mutex sequences
// file I/O and the dirty flag; the table mutex only guards the map.
type handleInfo struct {
	mu        sync.Mutex
	path      string // normalized remote path
	localPath string
	dirty     bool
}

// Staging owns the open-handle table and the local staging directory.
// Every open handle is backed by a private local file; dirty handles
// are reconciled with the server on release.
type Staging struct {
	dir      string
	client   *filejump.Client
	resolver *Resolver
	stats    *CoreStats

	mu      sync.Mutex
	nextFh  uint64
	handles map[uint64]*handleInfo
}

// NewStaging creates the staging directory if needed.
func NewStaging(dir string, client *filejump.Client, resolver *Resolver, stats *CoreStats) (*Staging, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{
		dir:      dir,
		client:   client,
		resolver: resolver,
		stats:    stats,
		handles:  make(map[uint64]*handleInfo),
	}, nil
}

// stagingName renders the deterministic local file name for a handle:
// the handle id plus the remote path with separators flattened.
func stagingName(fh uint64, remotePath string) string {
	flat := strings.ReplaceAll(strings.TrimPrefix(remotePath, "/"), "/", "_")
	return fmt.Sprintf("fj_%d_%s", fh, flat)
}

// Open stages a file locally and returns a new handle. A created or
// truncated handle starts from an empty staging file; otherwise the
// remote content is downloaded, falling back to an empty file when the
// entry is missing or the download fails. Only newly created files
// start dirty.
func (s *Staging) Open(ctx context.Context, path string, create, truncate bool) (uint64, error) {
	p := normalizePath(path)

	s.mu.Lock()
	s.nextFh++
	fh := s.nextFh
	s.mu.Unlock()

	h := &handleInfo{
		path:      p,
		localPath: filepath.Join(s.dir, stagingName(fh, p)),
		dirty:     create,
	}

	if create || truncate {
		if err := writeEmptyFile(h.localPath); err != nil {
			return 0, err
		}
	} else if err := s.download(ctx, p, h.localPath); err != nil {
		logger.Info("staging %s empty: %v", p, err)
		if err := writeEmptyFile(h.localPath); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	s.handles[fh] = h
	open := len(s.handles)
	s.mu.Unlock()

	s.stats.FilesOpened.Add(1)
	metrics.SetOpenHandles(open)
	return fh, nil
}

func writeEmptyFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// download stages the remote content of path into a local file.
func (s *Staging) download(ctx context.Context, path, localPath string) error {
	e, ok := s.resolver.Find(ctx, path)
	if !ok {
		return fmt.Errorf("%s: not on the server", path)
	}
	f, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	n, err := s.client.Download(ctx, e.ID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		metrics.RecordDownload(false)
		return err
	}
	s.stats.BytesDownloaded.Add(n)
	metrics.AddBytesDownloaded(n)
	metrics.RecordDownload(true)
	return nil
}

func (s *Staging) handle(fh uint64) *handleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[fh]
}

// OpenCount reports how many handles are currently open.
func (s *Staging) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// ReadAt reads from the staging file. Reads beyond the end return what
// is available, a read past the end returns zero bytes.
func (s *Staging) ReadAt(fh uint64, buf []byte, offset int64) (int, error) {
	h := s.handle(fh)
	if h == nil {
		return 0, ErrBadHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.ReadAt(buf, offset)
	if err == io.EOF {
		err = nil
	}
	if n > 0 {
		s.stats.BytesRead.Add(int64(n))
	}
	return n, err
}

// WriteAt writes to the staging file at the given offset, extending it
// if needed, and marks the handle dirty.
func (s *Staging) WriteAt(fh uint64, data []byte, offset int64) (int, error) {
	h := s.handle(fh)
	if h == nil {
		return 0, ErrBadHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.localPath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteAt(data, offset)
	if n > 0 {
		h.dirty = true
		s.stats.BytesWritten.Add(int64(n))
	}
	return n, err
}

// Truncate resizes the staging file and marks the handle dirty.
func (s *Staging) Truncate(fh uint64, size int64) error {
	h := s.handle(fh)
	if h == nil {
		return ErrBadHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.Truncate(h.localPath, size); err != nil {
		return err
	}
	h.dirty = true
	return nil
}

// HandleSize reports the current size of the staging file behind an
// open handle.
func (s *Staging) HandleSize(fh uint64) (int64, bool) {
	h := s.handle(fh)
	if h == nil {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := os.Stat(h.localPath)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Release closes a handle. Clean handles only drop their staging file.
// A dirty handle is reconciled by deleting the current remote entry at
// the path (missing entries are fine) and uploading the staging file
// into the parent directory. The staging file is removed regardless of
// the outcome. A cancelled upload is not an error; any other reconcile
// failure is reported. Unknown handles are a no-op.
func (s *Staging) Release(ctx context.Context, fh uint64) error {
	s.mu.Lock()
	h, ok := s.handles[fh]
	if ok {
		delete(s.handles, fh)
	}
	open := len(s.handles)
	s.mu.Unlock()
	metrics.SetOpenHandles(open)
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	defer os.Remove(h.localPath)

	if !h.dirty {
		return nil
	}
	s.stats.Reconciles.Add(1)

	if e, found := s.resolver.Find(ctx, h.path); found {
		if err := s.resolver.Delete(ctx, e); err != nil {
			logger.Info("release %s: previous entry not deleted: %v", h.path, err)
		}
	}

	dir, name := splitPath(h.path)
	parentID, found := s.resolver.Resolve(ctx, dir)
	if !found {
		s.stats.ReconcileFailures.Add(1)
		metrics.RecordUpload("error")
		return fmt.Errorf("release %s: parent directory not resolvable", h.path)
	}

	entry, err := s.client.Upload(ctx, h.localPath, parentID, name)
	if err != nil {
		if errors.Is(err, filejump.ErrCancelled) {
			metrics.RecordUpload("cancelled")
			logger.Info("release %s: upload cancelled", h.path)
			return nil
		}
		s.stats.ReconcileFailures.Add(1)
		metrics.RecordUpload("error")
		return err
	}

	s.resolver.InvalidateListing(entry.ParentID)
	if info, serr := os.Stat(h.localPath); serr == nil {
		s.stats.BytesUploaded.Add(info.Size())
		metrics.AddBytesUploaded(info.Size())
	}
	metrics.RecordUpload("success")
	return nil
}
