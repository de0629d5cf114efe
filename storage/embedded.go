package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/kvgateway/interfaces"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/atomic"
)

// DefaultFlushInterval is the period of the background flusher.
const DefaultFlushInterval = 100 * time.Millisecond

// EmbeddedOptions configures an EmbeddedStore.
type EmbeddedOptions struct {
	// Sync makes every Set and Delete upload the journal before returning.
	Sync bool

	// FlushInterval is the period of the background flusher. Zero disables it.
	FlushInterval time.Duration

	// WriteBuffer is the memtable size in bytes. Zero keeps the engine default.
	WriteBuffer int

	Compression opt.Compression
}

// EmbeddedStore implements interfaces.KVStore with an embedded LSM engine
// persisted into an object storage target.
//
// Concurrency control is entirely the engine's. Engine and object store failures
// are wrapped with interfaces.ErrEngine and returned unchanged otherwise.
type EmbeddedStore struct {
	db        *leveldb.DB
	stor      *ObjectStorage
	writeOpts *opt.WriteOptions
	log       *slog.Logger

	name        string
	locationURI string

	// flushErr holds the last background flush failure until Flush reports it.
	flushErr atomic.Error

	stop      chan struct{}
	flushDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewEmbeddedStore opens the engine rooted at objects. The caller hands over
// ownership of objects.
func NewEmbeddedStore(objects interfaces.ObjectStore, opts EmbeddedOptions, log *slog.Logger) (*EmbeddedStore, error) {
	stor := NewObjectStorage(objects, log)

	db, err := leveldb.Open(stor, &opt.Options{
		WriteBuffer: opts.WriteBuffer,
		Compression: opts.Compression,
	})
	if err != nil {
		stor.Close()
		return nil, fmt.Errorf("%w: failed to open engine at %s: %w", interfaces.ErrEngine, objects.Name(), err)
	}

	s := &EmbeddedStore{
		db:          db,
		stor:        stor,
		writeOpts:   &opt.WriteOptions{Sync: opts.Sync},
		log:         log,
		name:        fmt.Sprintf("embedded-%s", objects.Name()),
		locationURI: objects.LocationURI(),
		stop:        make(chan struct{}),
		flushDone:   make(chan struct{}),
	}

	if opts.FlushInterval > 0 {
		go s.flushLoop(opts.FlushInterval)
	} else {
		close(s.flushDone)
	}

	log.Info("Opened embedded store",
		slog.String("objects", objects.Name()),
		slog.String("owner", stor.Owner()),
		slog.Bool("sync", opts.Sync),
		slog.Duration("flush_interval", opts.FlushInterval))

	return s, nil
}

func (s *EmbeddedStore) Set(ctx context.Context, key, value []byte) error {
	if len(key) == 0 {
		return interfaces.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Put(key, value, s.writeOpts); err != nil {
		return fmt.Errorf("%w: put: %w", interfaces.ErrEngine, err)
	}
	return nil
}

func (s *EmbeddedStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, interfaces.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: get: %w", interfaces.ErrEngine, err)
	}
	return value, nil
}

// Delete removes key. The engine treats deleting a missing key as a no-op.
func (s *EmbeddedStore) Delete(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return interfaces.ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Delete(key, s.writeOpts); err != nil {
		return fmt.Errorf("%w: delete: %w", interfaces.ErrEngine, err)
	}
	return nil
}

// Flush uploads every accepted write that is not yet in the object store. A
// background flush failure since the previous Flush is reported here as well.
func (s *EmbeddedStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.stor.SyncAll()
	if bgErr := s.flushErr.Swap(nil); bgErr != nil {
		err = errors.Join(err, fmt.Errorf("background flush: %w", bgErr))
	}
	if err != nil {
		return fmt.Errorf("%w: flush: %w", interfaces.ErrEngine, err)
	}
	return nil
}

// Close stops the background flusher, closes the engine and releases the lock.
func (s *EmbeddedStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.flushDone

		var errs []error
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.stor.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			s.closeErr = fmt.Errorf("%w: close: %w", interfaces.ErrEngine, err)
		}
	})
	return s.closeErr
}

func (s *EmbeddedStore) Name() string {
	return s.name
}

func (s *EmbeddedStore) LocationURI() string {
	return s.locationURI
}

func (s *EmbeddedStore) flushLoop(interval time.Duration) {
	defer close(s.flushDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.stor.SyncAll(); err != nil {
				s.log.Error("Background flush failed", "err", err)
				s.flushErr.Store(err)
			}
		}
	}
}
