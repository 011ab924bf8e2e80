// Package vectorindex defines the VectorIndex capability the Memory and
// Ontology engines consume (spec.md §1: "the embedding model and raw vector
// index ... a capability the memory layer consumes via insert/search/
// all_docs") and provides an in-process reference implementation so M, D,
// F, E, and N can be exercised without a real embedding backend. Modeled
// loosely on theRebelliousNerd-codenerd's sqlite-vec-go-bindings adapter:
// a thin insert/search/all-docs surface in front of a swappable backend.
package vectorindex

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Doc is a single stored document: opaque text plus a flat string
// metadata bag used for filtering.
type Doc struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// ScoredDoc pairs a Doc with its similarity score from a Search call.
type ScoredDoc struct {
	Doc   Doc
	Score float64
}

// Index is the capability contract the rest of warden depends on. The
// real embedding model and backing store are out of scope (spec.md §1);
// this interface is the seam.
type Index interface {
	Insert(ctx context.Context, text string, metadata map[string]string) (string, error)
	Search(ctx context.Context, query string, filter map[string]string, k int, threshold float64) ([]ScoredDoc, error)
	AllDocs(ctx context.Context) (map[string]Doc, error)
	// DeleteByFilter removes every document whose metadata is a superset
	// of filter, returning the count removed. The Ontology Store's
	// update-by-delete-then-insert idiom (spec.md §4.11) depends on this.
	DeleteByFilter(ctx context.Context, filter map[string]string) (int, error)
}

// InMemory is a reference Index: similarity is cosine similarity over a
// term-frequency vector, which is deterministic and dependency-free,
// standing in for a real embedding model per spec.md's explicit Non-goal.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]Doc
}

// NewInMemory constructs an empty in-memory index.
func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[string]Doc)}
}

// Insert stores text with metadata under a fresh ID.
func (idx *InMemory) Insert(_ context.Context, text string, metadata map[string]string) (string, error) {
	id := uuid.NewString()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	idx.mu.Lock()
	idx.docs[id] = Doc{ID: id, Text: text, Metadata: md}
	idx.mu.Unlock()
	return id, nil
}

// InsertWithID stores text under a caller-chosen ID, overwriting any
// existing document with that ID. Used by callers (the Ontology Store)
// that need stable, content-derived IDs rather than random ones.
func (idx *InMemory) InsertWithID(_ context.Context, id, text string, metadata map[string]string) error {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	idx.mu.Lock()
	idx.docs[id] = Doc{ID: id, Text: text, Metadata: md}
	idx.mu.Unlock()
	return nil
}

// Search returns documents whose metadata is a superset of filter and
// whose similarity to query is >= threshold, ranked descending, truncated
// to k (k<=0 means unbounded).
func (idx *InMemory) Search(_ context.Context, query string, filter map[string]string, k int, threshold float64) ([]ScoredDoc, error) {
	qv := termVector(query)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []ScoredDoc
	for _, d := range idx.docs {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}
		score := cosine(qv, termVector(d.Text))
		if score >= threshold {
			out = append(out, ScoredDoc{Doc: cloneDoc(d), Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// AllDocs returns every stored document.
func (idx *InMemory) AllDocs(_ context.Context) (map[string]Doc, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]Doc, len(idx.docs))
	for id, d := range idx.docs {
		out[id] = cloneDoc(d)
	}
	return out, nil
}

// DeleteByFilter removes documents matching filter, returning the count.
func (idx *InMemory) DeleteByFilter(_ context.Context, filter map[string]string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for id, d := range idx.docs {
		if matchesFilter(d.Metadata, filter) {
			delete(idx.docs, id)
			n++
		}
	}
	return n, nil
}

func cloneDoc(d Doc) Doc {
	md := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		md[k] = v
	}
	return Doc{ID: d.ID, Text: d.Text, Metadata: md}
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// termVector computes a lowercase-token term-frequency vector.
func termVector(text string) map[string]float64 {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	v := make(map[string]float64, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		v[f]++
	}
	return v
}

// cosine computes cosine similarity between two sparse term vectors.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, av := range a {
		dot += av * b[k]
		na += av * av
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
