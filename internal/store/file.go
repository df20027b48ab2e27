package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// createdMarker records when a store directory was created so ListStores
// can report creation order.
const createdMarker = ".created"

// FileBackend stores one directory per store and one JSON file per entry
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file-based backend rooted at dir
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend: directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

func (fb *FileBackend) CreateStore(_ context.Context, name string) error {
	_, err := fb.ensure(name)
	return err
}

func (fb *FileBackend) ensure(name string) (string, error) {
	if err := validStoreName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(fb.dir, name)
	marker := filepath.Join(dir, createdMarker)
	if _, err := os.Stat(marker); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := writeAtomic(marker, []byte(stamp)); err != nil {
		return "", err
	}
	return dir, nil
}

func (fb *FileBackend) ListStores(context.Context) ([]string, error) {
	dirents, err := os.ReadDir(fb.dir)
	if err != nil {
		return nil, err
	}

	type created struct {
		name string
		at   int64
	}
	var stores []created
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(fb.dir, d.Name(), createdMarker))
		if err != nil {
			continue // not a store
		}
		at, _ := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		stores = append(stores, created{name: d.Name(), at: at})
	}
	sort.SliceStable(stores, func(i, j int) bool {
		if stores[i].at == stores[j].at {
			return stores[i].name < stores[j].name
		}
		return stores[i].at < stores[j].at
	})

	names := make([]string, len(stores))
	for i, s := range stores {
		names[i] = s.name
	}
	return names, nil
}

func (fb *FileBackend) DeleteStore(_ context.Context, name string) error {
	if err := validStoreName(name); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(fb.dir, name))
}

func (fb *FileBackend) Get(_ context.Context, storeName, key string) (*Entry, error) {
	if err := validStoreName(storeName); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fb.path(storeName, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

func (fb *FileBackend) Set(_ context.Context, storeName, key string, entry *Entry) error {
	if _, err := fb.ensure(storeName); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(fb.path(storeName, key), data)
}

func (fb *FileBackend) Close() error { return nil }

// path generates the full filesystem path for a cache key
func (fb *FileBackend) path(storeName, key string) string {
	return filepath.Join(fb.dir, storeName, FileName(key))
}

// writeAtomic writes to a temporary file first, then renames it into place
func writeAtomic(path string, data []byte) error {
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// validStoreName rejects names that are unsafe as a directory name
func validStoreName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid store name %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("invalid store name %q", name)
		}
	}
	return nil
}
