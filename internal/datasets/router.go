// Package datasets resolves dataset names to on-disk SQLite handles,
// guarding against path traversal and caching one read-only handle per
// dataset for the life of the process.
package datasets

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jmylchreest/btorch/internal/apperr"
	"github.com/jmylchreest/btorch/internal/database"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Handle wraps one dataset's read-only SQLite connection. mu is held only
// while the handle is closed; no method exposes it to callers, and ordinary
// queries go straight to DB().
type Handle struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// DB returns the underlying read-only connection pool.
func (h *Handle) DB() *sql.DB { return h.db }

// Path returns the resolved on-disk path backing this handle.
func (h *Handle) Path() string { return h.path }

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Close()
}

// Router resolves dataset names to cached Handles, all rooted under one base
// directory. A dataset name maps to "<name>.db" inside that directory;
// resolution never escapes it, even via symlinks.
type Router struct {
	basePath string

	mu    sync.Mutex
	cache map[string]*Handle
}

// NewRouter builds a Router rooted at basePath. basePath need not exist yet.
func NewRouter(basePath string) (*Router, error) {
	real, err := realpath(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve dataset base path: %w", err)
	}
	return &Router{basePath: real, cache: make(map[string]*Handle)}, nil
}

// BasePath returns the router's canonicalized base directory.
func (r *Router) BasePath() string { return r.basePath }

// validateName checks name against the dataset naming rule and returns the
// normalized "<stem>.db" form. It rejects anything that would, after symlink
// resolution, resolve outside basePath.
func (r *Router) validateName(name string) (string, error) {
	stem := strings.TrimSuffix(name, ".db")
	if !nameRe.MatchString(stem) {
		return "", apperr.Validation(fmt.Sprintf("invalid dataset name: %s", name))
	}
	normalized := stem + ".db"

	dbPath := filepath.Join(r.basePath, normalized)
	real, err := realpath(dbPath)
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("resolve dataset path: %s", name), err)
	}
	if !strings.HasPrefix(real, r.basePath+string(os.PathSeparator)) {
		return "", apperr.Validation(fmt.Sprintf("path traversal detected: %s", name))
	}
	return normalized, nil
}

// GetDBPath returns the validated on-disk path for name without touching the
// filesystem or the handle cache.
func (r *Router) GetDBPath(name string) (string, error) {
	normalized, err := r.validateName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.basePath, normalized), nil
}

// Resolve returns the cached Handle for name, opening and caching it on
// first use. It returns (nil, nil) if the dataset file does not exist.
func (r *Router) Resolve(name string) (*Handle, error) {
	normalized, err := r.validateName(name)
	if err != nil {
		return nil, err
	}
	dbPath := filepath.Join(r.basePath, normalized)

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.cache[normalized]; ok {
		return h, nil
	}

	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal(fmt.Sprintf("stat dataset: %s", name), err)
	}

	db, err := database.OpenReadOnly(dbPath)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("open dataset: %s", name), err)
	}
	h := &Handle{db: db, path: dbPath}
	r.cache[normalized] = h
	return h, nil
}

// ListDatasets returns the names (without ".db") of every valid dataset file
// present under basePath, sorted.
func (r *Router) ListDatasets() ([]string, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, apperr.Internal("list datasets", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".db")
		if stem == e.Name() {
			continue // no .db suffix
		}
		if !nameRe.MatchString(stem) {
			continue
		}
		names = append(names, stem)
	}
	sort.Strings(names)
	return names, nil
}

// Evict closes and forgets the cached handle for name, if any. A later
// Resolve reopens it from disk.
func (r *Router) Evict(name string) error {
	normalized, err := r.validateName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	h, ok := r.cache[normalized]
	if ok {
		delete(r.cache, normalized)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return h.close()
}

// CloseAll closes every cached handle and empties the cache. It is called
// on shutdown; no HTTP route exposes it.
func (r *Router) CloseAll() error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.cache))
	for k, h := range r.cache {
		handles = append(handles, h)
		delete(r.cache, k)
	}
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// realpath resolves symlinks in path as far as the filesystem allows,
// mirroring Python's os.path.realpath: components that don't exist yet are
// appended unresolved rather than causing an error.
func realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir, file := filepath.Split(abs)
	dir = filepath.Clean(dir)
	if dir == abs {
		// Reached a root that itself doesn't resolve; nothing further to do.
		return abs, nil
	}
	resolvedDir, err := realpath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, file), nil
}
