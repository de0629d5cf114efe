package objstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ruteri/kvgateway/interfaces"
)

// tempPrefix marks in-flight writes; List never reports them.
const tempPrefix = ".objstore-"

// FileStore implements an object store on the local file system.
// Keys map to files below the base directory.
//
// Conditional writes are not enforced: a FileStore assumes a single process
// owns its directory.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a new file object store rooted at baseDir.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", filepath.ToSlash(baseDir)),
	}, nil
}

// Get reads the object stored under key.
func (s *FileStore) Get(ctx context.Context, key string) (*interfaces.Object, error) {
	filePath, err := s.filePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &interfaces.Object{Data: data, ETag: fileETag(info)}, nil
}

// Put writes data to a temporary file and renames it over key, so readers never
// observe a partially written object. PutOptions are ignored.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, _ interfaces.PutOptions) (string, error) {
	filePath, err := s.filePath(key)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return "", fmt.Errorf("failed to rename file: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	s.log.Debug("Stored object in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return fileETag(info), nil
}

// Delete removes the file stored under key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	filePath, err := s.filePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// List walks the deepest directory covered by prefix and returns matching keys.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	walkDir := prefix
	if !strings.HasSuffix(prefix, "/") {
		walkDir = path.Dir(prefix)
	}
	root := filepath.Join(s.baseDir, filepath.FromSlash(walkDir))

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return keys, nil
}

// Name returns a unique identifier for this object store.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

// LocationURI returns the URI that identifies this object store.
func (s *FileStore) LocationURI() string {
	return s.locationURI
}

// filePath maps a key to a path below the base directory.
func (s *FileStore) filePath(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

func fileETag(info os.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.ModTime().UnixNano(), info.Size())
}
