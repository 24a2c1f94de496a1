// Package fsmount exposes the bridge core as a FUSE filesystem via
// cgofuse (WinFSP on Windows, libfuse elsewhere). Every request is
// answered from the resolver's index and listing cache; file I/O goes
// through staging handles that are reconciled with the server on
// release.
package fsmount

import (
	"context"
	"errors"
	"os"
	"path"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/zlev67/filejumpfs/internal/bridge"
	"github.com/zlev67/filejumpfs/internal/metrics"
	"github.com/zlev67/filejumpfs/pkg/filejump"
	"github.com/zlev67/filejumpfs/pkg/logger"
)

const invalidFh = ^uint64(0)

// FileSystem implements fuse.FileSystemInterface on top of the bridge
// core.
type FileSystem struct {
	core       *bridge.Core
	host       *fuse.FileSystemHost
	mountPoint string
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a filesystem over the bridge core. Mount starts serving
// requests; the filesystem is single-use.
func New(core *bridge.Core, mountPoint string) *FileSystem {
	ctx, cancel := context.WithCancel(context.Background())
	return &FileSystem{
		core:       core,
		mountPoint: mountPoint,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Mount mounts the filesystem and blocks until it is unmounted or the
// context is cancelled.
func (f *FileSystem) Mount(ctx context.Context, opts []string) error {
	if err := os.MkdirAll(f.mountPoint, 0755); err != nil {
		return err
	}

	f.host = fuse.NewFileSystemHost(f)
	f.host.SetCapReaddirPlus(false)

	logger.Info("mounting filejump filesystem at %s", f.mountPoint)

	// Mount in a goroutine; host.Mount blocks until unmounted.
	errCh := make(chan error, 1)
	go func() {
		if f.host.Mount(f.mountPoint, opts) {
			errCh <- nil
		} else {
			errCh <- fuse.Error(-1)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		f.host.Unmount()
		return ctx.Err()
	}
}

// Unmount requests an unmount. Safe to call when nothing is mounted.
func (f *FileSystem) Unmount() {
	if f.host != nil {
		f.host.Unmount()
	}
}

// entryStat fills a stat struct from a remote entry. Entries with no
// usable timestamp get the current time.
func entryStat(e filejump.Entry, stat *fuse.Stat_t) {
	mtime := e.UpdatedAt
	if mtime.IsZero() {
		mtime = time.Now()
	}
	btime := e.CreatedAt
	if btime.IsZero() {
		btime = mtime
	}

	stat.Size = e.Size
	ts := fuse.NewTimespec(mtime)
	stat.Mtim = ts
	stat.Atim = ts
	stat.Ctim = ts
	stat.Birthtim = fuse.NewTimespec(btime)
	if e.Dir {
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | 0644
		stat.Nlink = 1
	}
	stat.Uid = uint32(os.Getuid())
	stat.Gid = uint32(os.Getgid())
}

func splitPath(p string) (dir, name string) {
	return path.Dir(p), path.Base(p)
}

// lookupDir maps a path to a directory id, distinguishing missing
// paths from non-directories. The root is always directory 0.
func (f *FileSystem) lookupDir(p string) (int64, int) {
	if p == "/" {
		return 0, 0
	}
	e, ok := f.core.Resolver.Find(f.ctx, p)
	if !ok {
		return 0, -fuse.ENOENT
	}
	if !e.Dir {
		return 0, -fuse.ENOTDIR
	}
	return e.ID, 0
}

// --- fuse.FileSystemInterface implementation ---

func (f *FileSystem) Init() {
	logger.Info("fuse: init")
}

func (f *FileSystem) Destroy() {
	logger.Info("fuse: destroy")
	f.cancel()
}

// Getattr answers from the staging file when a handle is attached, so
// files created but not yet released stat with their in-flight size.
func (f *FileSystem) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	metrics.RecordOp("getattr")
	if path == "/" {
		entryStat(filejump.Entry{Dir: true}, stat)
		return 0
	}
	if fh != invalidFh {
		if size, ok := f.core.Staging.HandleSize(fh); ok {
			entryStat(filejump.Entry{Size: size}, stat)
			return 0
		}
	}
	e, ok := f.core.Resolver.Find(f.ctx, path)
	if !ok {
		return -fuse.ENOENT
	}
	entryStat(e, stat)
	return 0
}

func (f *FileSystem) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	metrics.RecordOp("readdir")
	dirID, rc := f.lookupDir(path)
	if rc != 0 {
		return rc
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, e := range f.core.Resolver.List(f.ctx, dirID) {
		var st fuse.Stat_t
		entryStat(e, &st)
		if !fill(e.Name, &st, 0) {
			break
		}
	}
	return 0
}

func (f *FileSystem) Open(path string, flags int) (int, uint64) {
	metrics.RecordOp("open")
	if e, ok := f.core.Resolver.Find(f.ctx, path); ok && e.Dir {
		return -fuse.EISDIR, invalidFh
	}

	truncate := flags&os.O_TRUNC != 0
	fh, err := f.core.Staging.Open(f.ctx, path, false, truncate)
	if err != nil {
		logger.Error("open %s: %v", path, err)
		metrics.RecordOpError("open")
		return -fuse.EIO, invalidFh
	}
	return 0, fh
}

func (f *FileSystem) Create(path string, flags int, mode uint32) (int, uint64) {
	metrics.RecordOp("create")
	if _, ok := f.core.Resolver.Find(f.ctx, path); ok {
		return -fuse.EEXIST, invalidFh
	}
	dir, _ := splitPath(path)
	if _, ok := f.core.Resolver.Resolve(f.ctx, dir); !ok {
		return -fuse.ENOENT, invalidFh
	}

	fh, err := f.core.Staging.Open(f.ctx, path, true, true)
	if err != nil {
		logger.Error("create %s: %v", path, err)
		metrics.RecordOpError("create")
		return -fuse.EIO, invalidFh
	}
	f.core.Stats.FilesCreated.Add(1)
	logger.Info("created file %s", path)
	return 0, fh
}

func (f *FileSystem) Read(path string, buff []byte, ofst int64, fh uint64) int {
	metrics.RecordOp("read")
	n, err := f.core.Staging.ReadAt(fh, buff, ofst)
	if err != nil {
		if errors.Is(err, bridge.ErrBadHandle) {
			return -fuse.EBADF
		}
		logger.Error("read %s at %d: %v", path, ofst, err)
		metrics.RecordOpError("read")
		return -fuse.EIO
	}
	return n
}

func (f *FileSystem) Write(path string, buff []byte, ofst int64, fh uint64) int {
	metrics.RecordOp("write")
	n, err := f.core.Staging.WriteAt(fh, buff, ofst)
	if err != nil {
		if errors.Is(err, bridge.ErrBadHandle) {
			return -fuse.EBADF
		}
		logger.Error("write %s at %d: %v", path, ofst, err)
		metrics.RecordOpError("write")
		return -fuse.EIO
	}
	return n
}

// Truncate resizes through the open handle when one is attached.
// Without a handle the file is staged, resized, and reconciled in one
// cycle.
func (f *FileSystem) Truncate(path string, size int64, fh uint64) int {
	metrics.RecordOp("truncate")
	if fh != invalidFh {
		if err := f.core.Staging.Truncate(fh, size); err != nil {
			if errors.Is(err, bridge.ErrBadHandle) {
				return -fuse.EBADF
			}
			metrics.RecordOpError("truncate")
			return -fuse.EIO
		}
		return 0
	}

	e, ok := f.core.Resolver.Find(f.ctx, path)
	if !ok {
		return -fuse.ENOENT
	}
	if e.Dir {
		return -fuse.EISDIR
	}

	tfh, err := f.core.Staging.Open(f.ctx, path, false, size == 0)
	if err != nil {
		metrics.RecordOpError("truncate")
		return -fuse.EIO
	}
	if err := f.core.Staging.Truncate(tfh, size); err != nil {
		f.core.Staging.Release(f.ctx, tfh)
		metrics.RecordOpError("truncate")
		return -fuse.EIO
	}
	if err := f.core.Staging.Release(f.ctx, tfh); err != nil {
		logger.Error("truncate %s: %v", path, err)
		metrics.RecordOpError("truncate")
		return -fuse.EIO
	}
	return 0
}

func (f *FileSystem) Flush(path string, fh uint64) int {
	return 0
}

// Release reconciles dirty handles with the server; a failed
// reconciliation surfaces as EIO.
func (f *FileSystem) Release(path string, fh uint64) int {
	metrics.RecordOp("release")
	if err := f.core.Staging.Release(f.ctx, fh); err != nil {
		logger.Error("release %s: %v", path, err)
		metrics.RecordOpError("release")
		return -fuse.EIO
	}
	return 0
}

func (f *FileSystem) Mkdir(path string, mode uint32) int {
	metrics.RecordOp("mkdir")
	if _, ok := f.core.Resolver.Find(f.ctx, path); ok {
		return -fuse.EEXIST
	}
	dir, name := splitPath(path)
	parentID, ok := f.core.Resolver.Resolve(f.ctx, dir)
	if !ok {
		return -fuse.ENOENT
	}

	if _, err := f.core.Resolver.CreateFolder(f.ctx, parentID, name); err != nil {
		logger.Error("mkdir %s: %v", path, err)
		metrics.RecordOpError("mkdir")
		return -fuse.EIO
	}
	f.core.Stats.DirsCreated.Add(1)
	logger.Info("created directory %s", path)
	return 0
}

func (f *FileSystem) Unlink(path string) int {
	metrics.RecordOp("unlink")
	e, ok := f.core.Resolver.Find(f.ctx, path)
	if !ok {
		return -fuse.ENOENT
	}
	if e.Dir {
		return -fuse.EISDIR
	}

	if err := f.core.Resolver.Delete(f.ctx, e); err != nil {
		logger.Error("unlink %s: %v", path, err)
		metrics.RecordOpError("unlink")
		return -fuse.EIO
	}
	f.core.Stats.FilesDeleted.Add(1)
	logger.Info("deleted file %s", path)
	return 0
}

// Rmdir refuses non-empty directories before issuing any delete; the
// server would otherwise remove the subtree wholesale.
func (f *FileSystem) Rmdir(path string) int {
	metrics.RecordOp("rmdir")
	e, ok := f.core.Resolver.Find(f.ctx, path)
	if !ok {
		return -fuse.ENOENT
	}
	if !e.Dir {
		return -fuse.ENOTDIR
	}
	if len(f.core.Resolver.List(f.ctx, e.ID)) > 0 {
		return -fuse.ENOTEMPTY
	}

	if err := f.core.Resolver.Delete(f.ctx, e); err != nil {
		logger.Error("rmdir %s: %v", path, err)
		metrics.RecordOpError("rmdir")
		return -fuse.EIO
	}
	f.core.Stats.DirsDeleted.Add(1)
	logger.Info("removed directory %s", path)
	return 0
}

func (f *FileSystem) Rename(oldpath string, newpath string) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Opendir(path string) (int, uint64) {
	metrics.RecordOp("opendir")
	if _, rc := f.lookupDir(path); rc != 0 {
		return rc, invalidFh
	}
	return 0, 0
}

func (f *FileSystem) Releasedir(path string, fh uint64) int {
	return 0
}

func (f *FileSystem) Fsync(path string, datasync bool, fh uint64) int {
	return 0
}

func (f *FileSystem) Fsyncdir(path string, datasync bool, fh uint64) int {
	return 0
}

func (f *FileSystem) Chmod(path string, mode uint32) int {
	return 0
}

func (f *FileSystem) Chown(path string, uid uint32, gid uint32) int {
	return 0
}

func (f *FileSystem) Utimens(path string, tmsp []fuse.Timespec) int {
	return 0
}

func (f *FileSystem) Access(path string, mask uint32) int {
	return 0
}

// Statfs reports fixed defaults; the API exposes no quota.
func (f *FileSystem) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Blocks = 1 << 30
	stat.Bfree = stat.Blocks / 2
	stat.Bavail = stat.Bfree
	stat.Files = 1000000
	stat.Ffree = 999000
	stat.Namemax = 255
	return 0
}

func (f *FileSystem) Mknod(path string, mode uint32, dev uint64) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Link(oldpath string, newpath string) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Symlink(target string, newpath string) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Readlink(path string) (int, string) {
	return -fuse.ENOSYS, ""
}

func (f *FileSystem) Setxattr(path string, name string, value []byte, flags int) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Getxattr(path string, name string) (int, []byte) {
	return -fuse.ENODATA, nil
}

func (f *FileSystem) Removexattr(path string, name string) int {
	return -fuse.ENOSYS
}

func (f *FileSystem) Listxattr(path string, fill func(name string) bool) int {
	return 0
}
