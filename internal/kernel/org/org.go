// Package org loads the active organization definition — the file naming
// which roles form the current hierarchy — with mtime-based caching, per
// spec.md §4.5 step 1: "Load active.json (mtime-cached). If absent →
// no-op (backward compatible)."
package org

import (
	"encoding/json"
	"os"
	"sync"
)

// Active is the organization's active-hierarchy declaration, loaded from
// organizations/active.json.
type Active struct {
	Name      string   `json:"name"`
	Hierarchy []string `json:"hierarchy"`
}

// Loader caches the parsed Active document keyed by the source file's
// modification time, so a hot per-turn call does not re-read and
// re-parse the file unless it changed on disk.
type Loader struct {
	mu      sync.Mutex
	path    string
	modTime int64
	cached  *Active
}

// NewLoader builds a Loader for the active.json file at path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load returns the current Active document, or nil if the file is absent
// (the documented backward-compatible no-op), re-reading only when the
// file's mtime has advanced since the last call.
func (l *Loader) Load() (*Active, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	mtime := info.ModTime().UnixNano()
	if l.cached != nil && mtime == l.modTime {
		return l.cached, nil
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var a Active
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	l.cached = &a
	l.modTime = mtime
	return l.cached, nil
}
