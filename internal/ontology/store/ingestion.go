package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wardenai/warden/internal/ontology/model"
)

// ingestionEntry is one line of the ingestion queue JSONL file: a
// candidate plus the processed marker spec.md §6 names
// ("CandidateEntity lines with optional _resolved:true marker").
type ingestionEntry struct {
	Candidate *model.CandidateEntity `json:"candidate"`
	Resolved  bool                   `json:"_resolved,omitempty"`
}

// recordKey identifies a candidate for resolved-marker bookkeeping, the
// same (source_id, record_id) pair StoreEntity's provenance chain and
// recordKeys already key off of.
func recordKey(c *model.CandidateEntity) string {
	return c.Provenance.SourceID + ":" + c.Provenance.RecordID
}

// IngestionQueue is the durable queue spec.md §6 names
// (ontology/ingestion_queue.jsonl): connectors Enqueue CandidateEntity
// records; RunResolution drains Unresolved() each cycle and MarkResolved
// marks the processed ones in place. Modeled directly on
// RelationshipLog's replay-then-append shape (relationships.go) for new
// writes, and on RelationshipLog.Compact's whole-file-rewrite shape for
// the resolved-marker update, matching spec.md §5's "ingestion queue
// JSONL: append-only; marker rewrites same constraint [as compaction]".
type IngestionQueue struct {
	Path string

	mu    sync.Mutex
	keys  []string // recordKey() in first-seen order
	byKey map[string]*ingestionEntry
}

// OpenIngestionQueue opens (creating if absent) the JSONL file at path
// and replays it to rebuild the in-memory index.
func OpenIngestionQueue(path string) (*IngestionQueue, error) {
	q := &IngestionQueue{Path: path, byKey: map[string]*ingestionEntry{}}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ingestion queue %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e ingestionEntry
		if err := json.Unmarshal(line, &e); err != nil || e.Candidate == nil {
			continue
		}
		q.index(&e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ingestion queue %q: %w", path, err)
	}
	return q, nil
}

// NewInMemoryIngestionQueue constructs an IngestionQueue with no backing
// file, for tests; Enqueue/MarkResolved become no-ops on the file and
// only update the in-memory index.
func NewInMemoryIngestionQueue() *IngestionQueue {
	return &IngestionQueue{byKey: map[string]*ingestionEntry{}}
}

func (q *IngestionQueue) index(e *ingestionEntry) {
	key := recordKey(e.Candidate)
	if _, ok := q.byKey[key]; !ok {
		q.keys = append(q.keys, key)
	}
	cp := *e
	q.byKey[key] = &cp
}

// Enqueue appends cand as a new, unresolved queue entry.
func (q *IngestionQueue) Enqueue(cand *model.CandidateEntity) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &ingestionEntry{Candidate: cand}
	q.index(e)
	if q.Path == "" {
		return nil
	}
	f, err := os.OpenFile(q.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening ingestion queue %q: %w", q.Path, err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling candidate entity: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing ingestion queue %q: %w", q.Path, err)
	}
	return nil
}

// Unresolved returns every candidate not yet marked _resolved:true, in
// first-seen order.
func (q *IngestionQueue) Unresolved() []*model.CandidateEntity {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.CandidateEntity, 0, len(q.keys))
	for _, key := range q.keys {
		e, ok := q.byKey[key]
		if !ok || e.Resolved {
			continue
		}
		cp := *e.Candidate
		out = append(out, &cp)
	}
	return out
}

// MarkResolved flags cands as _resolved:true and rewrites the backing
// file, spec.md §4.10 step 6's "mark processed candidates resolved in
// the ingestion queue". Rewriting the whole file is the same exclusive-
// writer discipline RelationshipLog.Compact uses; spec.md §5 requires
// marker rewrites be "the only writer during that phase".
func (q *IngestionQueue) MarkResolved(cands []*model.CandidateEntity) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, c := range cands {
		if e, ok := q.byKey[recordKey(c)]; ok {
			e.Resolved = true
		}
	}
	if q.Path == "" {
		return nil
	}
	tmp := q.Path + ".compact"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening ingestion queue rewrite %q: %w", tmp, err)
	}
	for _, key := range q.keys {
		e, ok := q.byKey[key]
		if !ok {
			continue
		}
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshaling candidate entity: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("writing ingestion queue rewrite %q: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, q.Path); err != nil {
		return fmt.Errorf("replacing ingestion queue %q: %w", q.Path, err)
	}
	return nil
}
