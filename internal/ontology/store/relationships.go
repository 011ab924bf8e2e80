package store

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wardenai/warden/internal/ontology/model"
)

// RelationshipID computes spec.md §4.11's stable relationship ID:
// rel_<md5(from:type:to)[:12]>.
func RelationshipID(from, relType, to string) string {
	sum := md5.Sum([]byte(from + ":" + relType + ":" + to))
	return "rel_" + hex.EncodeToString(sum[:])[:12]
}

// RelationshipLog is the append-only JSONL edge log of spec.md §4.11.
// Every Upsert appends a full record; the in-memory index keeps only the
// latest line per rel_id, so readers never see stale state even though
// the file itself accumulates history until Compact runs.
type RelationshipLog struct {
	Path string

	mu    sync.Mutex
	byID  map[string]*model.Relationship
	order []string // insertion order of first-seen rel_ids, for deterministic iteration
}

// OpenRelationshipLog opens (creating if absent) the JSONL file at path
// and replays it to rebuild the in-memory index.
func OpenRelationshipLog(path string) (*RelationshipLog, error) {
	l := &RelationshipLog{Path: path, byID: map[string]*model.Relationship{}}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening relationships log %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rel model.Relationship
		if err := json.Unmarshal(line, &rel); err != nil {
			continue
		}
		l.index(&rel)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading relationships log %q: %w", path, err)
	}
	return l, nil
}

// NewInMemoryRelationshipLog constructs a RelationshipLog with no backing
// file, for tests; Upsert/Compact become no-ops on the file and only
// update the in-memory index.
func NewInMemoryRelationshipLog() *RelationshipLog {
	return &RelationshipLog{byID: map[string]*model.Relationship{}}
}

func (l *RelationshipLog) index(rel *model.Relationship) {
	if _, ok := l.byID[rel.RelID]; !ok {
		l.order = append(l.order, rel.RelID)
	}
	cp := *rel
	l.byID[rel.RelID] = &cp
}

// Upsert appends rel as a new JSONL line (insert or confidence/deprecation
// update — the log is append-only) and updates the in-memory index.
func (l *RelationshipLog) Upsert(rel *model.Relationship) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.index(rel)
	if l.Path == "" {
		return nil
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening relationships log %q: %w", l.Path, err)
	}
	defer f.Close()

	line, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("marshaling relationship %q: %w", rel.RelID, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing relationships log %q: %w", l.Path, err)
	}
	return nil
}

// Get returns the current record for relID, or nil if unknown.
func (l *RelationshipLog) Get(relID string) *model.Relationship {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rel, ok := l.byID[relID]; ok {
		cp := *rel
		return &cp
	}
	return nil
}

// All returns every current relationship (latest version per rel_id, in
// first-seen order), including deprecated ones.
func (l *RelationshipLog) All() []*model.Relationship {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Relationship, 0, len(l.order))
	for _, id := range l.order {
		if rel, ok := l.byID[id]; ok {
			cp := *rel
			out = append(out, &cp)
		}
	}
	return out
}

// Deprecate flags relID as deprecated (via a fresh append, preserving the
// append-only invariant) and returns whether the ID was known.
func (l *RelationshipLog) Deprecate(relID string, at time.Time) (bool, error) {
	l.mu.Lock()
	existing, ok := l.byID[relID]
	l.mu.Unlock()
	if !ok {
		return false, nil
	}
	cp := *existing
	cp.Deprecated = true
	cp.UpdatedAt = at
	return true, l.Upsert(&cp)
}

// Compact rewrites the backing file keeping only non-deprecated rows
// (spec.md §4.11: "periodic compaction drops deprecated rows"), one line
// per rel_id.
func (l *RelationshipLog) Compact() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kept []*model.Relationship
	var dropped int
	for _, id := range l.order {
		rel, ok := l.byID[id]
		if !ok {
			continue
		}
		if rel.Deprecated {
			dropped++
			delete(l.byID, id)
			continue
		}
		kept = append(kept, rel)
	}
	l.order = l.order[:0]
	for _, rel := range kept {
		l.order = append(l.order, rel.RelID)
	}

	if l.Path == "" {
		return dropped, nil
	}
	tmp := l.Path + ".compact"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening compaction file %q: %w", tmp, err)
	}
	for _, rel := range kept {
		line, err := json.Marshal(rel)
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("marshaling relationship %q: %w", rel.RelID, err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return 0, fmt.Errorf("writing compaction file %q: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, l.Path); err != nil {
		return 0, fmt.Errorf("replacing relationships log %q: %w", l.Path, err)
	}
	return dropped, nil
}
