package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/kvgateway/interfaces"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/atomic"
)

const (
	currentObject = "CURRENT"
	lockObject    = "LOCK"
)

// lockRecord is the content of the LOCK object.
type lockRecord struct {
	Owner    string    `json:"owner"`
	Epoch    uint64    `json:"epoch"`
	Acquired time.Time `json:"acquired"`
}

// ObjectStorage implements the engine's storage.Storage on top of an ObjectStore.
//
// Every engine file is one object. Writers buffer the whole file in memory and
// upload it on Sync and Close, so an object is always a complete prefix of the
// file the engine wrote.
//
// Ownership of a location is coordinated with conditional writes: Lock takes over
// the LOCK object, and every manifest pointer update (SetMeta) is conditioned on
// the CURRENT ETag this process last saw. Once another process opens the same
// location, the first manifest update of the old owner fails with
// interfaces.ErrFenced. Before each upload the LOCK object is also re-read, and
// a writer that finds another owner there stops writing. On a store without
// conditional writes (the local filesystem) only the LOCK check applies.
type ObjectStorage struct {
	objects interfaces.ObjectStore
	log     *slog.Logger
	owner   string
	fenced  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	writers  map[ldbstorage.FileDesc]*objectWriter
	metaETag string
	lockETag string
	locked   bool
	closed   bool
}

// NewObjectStorage creates an engine storage rooted at objects.
func NewObjectStorage(objects interfaces.ObjectStore, log *slog.Logger) *ObjectStorage {
	ctx, cancel := context.WithCancel(context.Background())
	return &ObjectStorage{
		objects: objects,
		log:     log,
		owner:   uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		writers: make(map[ldbstorage.FileDesc]*objectWriter),
	}
}

// Owner returns the id this storage writes into the LOCK object.
func (s *ObjectStorage) Owner() string {
	return s.owner
}

// Lock takes ownership of the location by replacing the LOCK object with a new
// owner record. A concurrent opener that wins the conditional write makes this
// call fail with storage.ErrLocked.
func (s *ObjectStorage) Lock() (ldbstorage.Locker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ldbstorage.ErrClosed
	}
	if s.locked {
		return nil, ldbstorage.ErrLocked
	}

	record := lockRecord{Owner: s.owner, Acquired: time.Now().UTC()}
	opts := interfaces.PutOptions{IfNoneMatch: true}

	prev, err := s.objects.Get(s.ctx, lockObject)
	switch {
	case err == nil:
		var prevRecord lockRecord
		if jerr := json.Unmarshal(prev.Data, &prevRecord); jerr == nil {
			record.Epoch = prevRecord.Epoch + 1
			s.log.Info("Taking over engine lock",
				slog.String("previous_owner", prevRecord.Owner),
				slog.Uint64("epoch", record.Epoch))
		}
		opts = interfaces.PutOptions{IfMatch: prev.ETag}
	case errors.Is(err, interfaces.ErrObjectNotFound):
	default:
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	etag, err := s.objects.Put(s.ctx, lockObject, data, opts)
	if err != nil {
		if errors.Is(err, interfaces.ErrPreconditionFailed) {
			return nil, ldbstorage.ErrLocked
		}
		return nil, fmt.Errorf("failed to write lock: %w", err)
	}

	s.lockETag = etag
	s.locked = true
	return &objectLock{s: s}, nil
}

// unlock removes the LOCK object if this process still owns it.
func (s *ObjectStorage) unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.locked {
		return
	}
	s.locked = false

	obj, err := s.objects.Get(s.ctx, lockObject)
	if err != nil {
		return
	}
	var record lockRecord
	if err := json.Unmarshal(obj.Data, &record); err != nil || record.Owner != s.owner {
		s.log.Warn("Engine lock was taken over, leaving it in place", slog.String("owner", record.Owner))
		return
	}
	if err := s.objects.Delete(s.ctx, lockObject); err != nil {
		s.log.Warn("Failed to release engine lock", "err", err)
	}
}

type objectLock struct {
	s    *ObjectStorage
	once sync.Once
}

func (l *objectLock) Unlock() {
	l.once.Do(l.s.unlock)
}

func (s *ObjectStorage) Log(str string) {
	s.log.Debug("engine", slog.String("msg", str))
}

// SetMeta points CURRENT at fd. The write is conditioned on the CURRENT version
// last seen by this process.
func (s *ObjectStorage) SetMeta(fd ldbstorage.FileDesc) error {
	if !ldbstorage.FileDescOk(fd) || fd.Type != ldbstorage.TypeManifest {
		return ldbstorage.ErrInvalidFile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ldbstorage.ErrClosed
	}

	opts := interfaces.PutOptions{IfNoneMatch: s.metaETag == ""}
	if s.metaETag != "" {
		opts.IfMatch = s.metaETag
	}

	if s.fenced.Load() {
		return fmt.Errorf("%w: %s", interfaces.ErrFenced, s.objects.Name())
	}

	etag, err := s.objects.Put(s.ctx, currentObject, []byte(objectName(fd)+"\n"), opts)
	if err != nil {
		if errors.Is(err, interfaces.ErrPreconditionFailed) {
			s.fenced.Store(true)
			s.log.Error("Manifest pointer changed by another writer", slog.String("manifest", objectName(fd)))
			return fmt.Errorf("%w: %s", interfaces.ErrFenced, s.objects.Name())
		}
		return fmt.Errorf("failed to write %s: %w", currentObject, err)
	}

	s.metaETag = etag
	return nil
}

// GetMeta returns the manifest CURRENT points at, or os.ErrNotExist for a new
// location.
func (s *ObjectStorage) GetMeta() (ldbstorage.FileDesc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ldbstorage.FileDesc{}, ldbstorage.ErrClosed
	}

	obj, err := s.objects.Get(s.ctx, currentObject)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return ldbstorage.FileDesc{}, os.ErrNotExist
		}
		return ldbstorage.FileDesc{}, fmt.Errorf("failed to read %s: %w", currentObject, err)
	}
	s.metaETag = obj.ETag

	fd, ok := parseObjectName(strings.TrimSpace(string(obj.Data)))
	if !ok || fd.Type != ldbstorage.TypeManifest {
		return ldbstorage.FileDesc{}, &ldbstorage.ErrCorrupted{
			Err: fmt.Errorf("invalid %s content: %q", currentObject, obj.Data),
		}
	}
	return fd, nil
}

func (s *ObjectStorage) List(ft ldbstorage.FileType) ([]ldbstorage.FileDesc, error) {
	if s.isClosed() {
		return nil, ldbstorage.ErrClosed
	}

	keys, err := s.objects.List(s.ctx, "")
	if err != nil {
		return nil, err
	}

	var fds []ldbstorage.FileDesc
	for _, key := range keys {
		if strings.Contains(key, "/") {
			continue
		}
		if fd, ok := parseObjectName(key); ok && fd.Type&ft != 0 {
			fds = append(fds, fd)
		}
	}
	return fds, nil
}

// Open downloads the object for fd.
func (s *ObjectStorage) Open(fd ldbstorage.FileDesc) (ldbstorage.Reader, error) {
	if !ldbstorage.FileDescOk(fd) {
		return nil, ldbstorage.ErrInvalidFile
	}
	if s.isClosed() {
		return nil, ldbstorage.ErrClosed
	}

	name := objectName(fd)
	obj, err := s.objects.Get(s.ctx, name)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
		}
		return nil, err
	}
	return &objectReader{Reader: bytes.NewReader(obj.Data)}, nil
}

// Create starts a new buffered object for fd, replacing any previous writer.
func (s *ObjectStorage) Create(fd ldbstorage.FileDesc) (ldbstorage.Writer, error) {
	if !ldbstorage.FileDescOk(fd) {
		return nil, ldbstorage.ErrInvalidFile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ldbstorage.ErrClosed
	}

	w := &objectWriter{s: s, fd: fd, key: objectName(fd)}
	s.writers[fd] = w
	return w, nil
}

func (s *ObjectStorage) Remove(fd ldbstorage.FileDesc) error {
	if !ldbstorage.FileDescOk(fd) {
		return ldbstorage.ErrInvalidFile
	}
	if s.isClosed() {
		return ldbstorage.ErrClosed
	}
	return s.objects.Delete(s.ctx, objectName(fd))
}

// Rename copies the object and removes the old one; object stores have no
// atomic rename.
func (s *ObjectStorage) Rename(oldfd, newfd ldbstorage.FileDesc) error {
	if !ldbstorage.FileDescOk(oldfd) || !ldbstorage.FileDescOk(newfd) {
		return ldbstorage.ErrInvalidFile
	}
	if oldfd == newfd {
		return nil
	}
	if s.isClosed() {
		return ldbstorage.ErrClosed
	}

	obj, err := s.objects.Get(s.ctx, objectName(oldfd))
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return &os.PathError{Op: "rename", Path: objectName(oldfd), Err: os.ErrNotExist}
		}
		return err
	}
	if _, err := s.objects.Put(s.ctx, objectName(newfd), obj.Data, interfaces.PutOptions{}); err != nil {
		return err
	}
	return s.objects.Delete(s.ctx, objectName(oldfd))
}

// SyncAll uploads every open writer with unsynced data.
func (s *ObjectStorage) SyncAll() error {
	s.mu.Lock()
	writers := make([]*objectWriter, 0, len(s.writers))
	for _, w := range s.writers {
		writers = append(writers, w)
	}
	s.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Sync(); err != nil && !errors.Is(err, ldbstorage.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", w.key, err))
		}
	}
	return errors.Join(errs...)
}

// Close uploads any remaining writer data and stops all object store calls.
func (s *ObjectStorage) Close() error {
	if s.isClosed() {
		return ldbstorage.ErrClosed
	}
	err := s.SyncAll()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return err
}

// checkOwner fails with interfaces.ErrFenced once the LOCK object names another
// owner or has been removed by one.
func (s *ObjectStorage) checkOwner() error {
	if s.fenced.Load() {
		return fmt.Errorf("%w: %s", interfaces.ErrFenced, s.objects.Name())
	}

	s.mu.Lock()
	locked := s.locked
	s.mu.Unlock()
	if !locked {
		return nil
	}

	obj, err := s.objects.Get(s.ctx, lockObject)
	if err != nil && !errors.Is(err, interfaces.ErrObjectNotFound) {
		return fmt.Errorf("failed to read lock: %w", err)
	}

	var record lockRecord
	if err == nil {
		if jerr := json.Unmarshal(obj.Data, &record); jerr != nil {
			return fmt.Errorf("invalid lock content: %w", jerr)
		}
	}
	if record.Owner != s.owner {
		s.fenced.Store(true)
		s.log.Error("Engine lock taken over by another writer", slog.String("owner", record.Owner))
		return fmt.Errorf("%w: %s", interfaces.ErrFenced, s.objects.Name())
	}
	return nil
}

// Fenced reports whether another process has taken over this location.
func (s *ObjectStorage) Fenced() bool {
	return s.fenced.Load()
}

func (s *ObjectStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ObjectStorage) forget(w *objectWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writers[w.fd] == w {
		delete(s.writers, w.fd)
	}
}

type objectReader struct {
	*bytes.Reader
}

func (r *objectReader) Close() error {
	return nil
}

// objectWriter buffers an engine file and uploads it as a whole.
type objectWriter struct {
	s   *ObjectStorage
	fd  ldbstorage.FileDesc
	key string

	mu     sync.Mutex
	buf    []byte
	synced int
	closed bool

	// serialises uploads so an older snapshot never overwrites a newer one
	syncMu sync.Mutex
}

func (w *objectWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ldbstorage.ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *objectWriter) Sync() error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ldbstorage.ErrClosed
	}
	n := len(w.buf)
	// the buffer is append-only, so buf[:n] stays stable after unlocking
	snapshot := w.buf[:n]
	pending := n != w.synced
	w.mu.Unlock()

	if !pending {
		return nil
	}

	if err := w.s.checkOwner(); err != nil {
		return err
	}
	if _, err := w.s.objects.Put(w.s.ctx, w.key, snapshot, interfaces.PutOptions{}); err != nil {
		return err
	}

	w.mu.Lock()
	if n > w.synced {
		w.synced = n
	}
	w.mu.Unlock()
	return nil
}

func (w *objectWriter) Close() error {
	err := w.Sync()
	if errors.Is(err, ldbstorage.ErrClosed) {
		return err
	}

	w.mu.Lock()
	w.closed = true
	w.buf = nil
	w.mu.Unlock()

	w.s.forget(w)
	return err
}

// objectName follows the engine's on-disk naming so a location written through
// the filesystem target is readable by stock tooling.
func objectName(fd ldbstorage.FileDesc) string {
	switch fd.Type {
	case ldbstorage.TypeManifest:
		return fmt.Sprintf("MANIFEST-%06d", fd.Num)
	case ldbstorage.TypeJournal:
		return fmt.Sprintf("%06d.log", fd.Num)
	case ldbstorage.TypeTable:
		return fmt.Sprintf("%06d.ldb", fd.Num)
	case ldbstorage.TypeTemp:
		return fmt.Sprintf("%06d.tmp", fd.Num)
	default:
		panic("invalid file type")
	}
}

func parseObjectName(name string) (ldbstorage.FileDesc, bool) {
	if rest, ok := strings.CutPrefix(name, "MANIFEST-"); ok {
		num, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || num < 0 {
			return ldbstorage.FileDesc{}, false
		}
		return ldbstorage.FileDesc{Type: ldbstorage.TypeManifest, Num: num}, true
	}

	base, ext, ok := strings.Cut(name, ".")
	if !ok {
		return ldbstorage.FileDesc{}, false
	}
	num, err := strconv.ParseInt(base, 10, 64)
	if err != nil || num < 0 {
		return ldbstorage.FileDesc{}, false
	}

	var ft ldbstorage.FileType
	switch ext {
	case "log":
		ft = ldbstorage.TypeJournal
	case "ldb", "sst":
		ft = ldbstorage.TypeTable
	case "tmp":
		ft = ldbstorage.TypeTemp
	default:
		return ldbstorage.FileDesc{}, false
	}
	return ldbstorage.FileDesc{Type: ft, Num: num}, true
}
