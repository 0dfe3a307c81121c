package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	fileExt      = ".json"
	tempPrefix   = ".tmp-"
	maxFileBytes = 4 << 20
)

// FileKV stores every key in its own file under a directory. Files are
// replaced atomically (temp file + rename), so readers never observe a
// partially written value. Put holds an advisory lock on the directory
// between its version check and the rename, so the check also holds against
// other processes sharing it.
type FileKV struct {
	dir string
	mu  sync.Mutex
}

// envelope is the on-disk format of one key.
type envelope struct {
	Version int64  `json:"version"`
	Value   string `json:"value"`
}

func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty storage directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) Dir() string { return f.dir }

func (f *FileKV) Get(_ context.Context, key string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	env, err := f.read(key)
	if err != nil {
		return Record{}, err
	}
	return Record{Value: []byte(env.Value), Version: env.Version}, nil
}

func (f *FileKV) Put(_ context.Context, key string, value []byte, expect int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := lockDir(f.dir)
	if err != nil {
		return 0, err
	}
	defer unlock()

	env, err := f.read(key)
	if err == nil {
		if env.Version != expect {
			return 0, ErrConflict
		}
	} else if expect != 0 {
		// Missing and unreadable files are both treated as absent.
		return 0, ErrConflict
	}

	next := expect + 1
	data, err := json.Marshal(envelope{Version: next, Value: string(value)})
	if err != nil {
		return 0, fmt.Errorf("encode %q: %w", key, err)
	}
	if err := f.writeAtomic(key, data); err != nil {
		return 0, err
	}
	return next, nil
}

func (f *FileKV) read(key string) (envelope, error) {
	file, err := os.Open(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return envelope{}, ErrNotFound
		}
		return envelope{}, fmt.Errorf("open %q: %w", key, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxFileBytes+1))
	if err != nil {
		return envelope{}, fmt.Errorf("read %q: %w", key, err)
	}
	if len(data) > maxFileBytes {
		return envelope{}, fmt.Errorf("file for %q is too large", key)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode %q: %w", key, err)
	}
	return env, nil
}

func (f *FileKV) writeAtomic(key string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", key, err)
	}
	return nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, url.QueryEscape(key)+fileExt)
}

// keyFromPath reverses path. It reports false for files that do not belong to
// the store, such as temp files.
func keyFromPath(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, tempPrefix) || !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(base, fileExt))
	if err != nil {
		return "", false
	}
	return key, true
}

// Watch calls fn with the key of every file created or rewritten in the store
// directory, including writes made by other processes. It blocks until ctx is
// done.
func (f *FileKV) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify init: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if key, ok := keyFromPath(event.Name); ok {
				fn(key)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", f.dir, err)
		}
	}
}
