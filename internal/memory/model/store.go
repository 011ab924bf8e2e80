package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wardenai/warden/internal/memory/vectorindex"
)

// Store adapts the flat vectorindex.Index capability (text + string
// metadata) to typed Memory Documents: the full Document is serialized
// into a single metadata key so Search/AllDocs can reconstruct it, while
// the axes that need to be filterable are also flattened into their own
// metadata keys.
type Store struct {
	Index vectorindex.Index
}

// NewStore wraps idx.
func NewStore(idx vectorindex.Index) *Store {
	return &Store{Index: idx}
}

const docMetadataKey = "_doc"

func toMetadata(d *Document) (map[string]string, error) {
	blob, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling document %q: %w", d.ID, err)
	}
	return map[string]string{
		docMetadataKey: string(blob),
		"area":         string(d.Area),
		"validity":     string(d.Classification.Validity),
		"relevance":    string(d.Classification.Relevance),
		"utility":      string(d.Classification.Utility),
		"source":       string(d.Classification.Source),
		"bst_domain":   d.Lineage.BSTDomain,
	}, nil
}

func fromVecDoc(vd vectorindex.Doc) (*Document, error) {
	raw, ok := vd.Metadata[docMetadataKey]
	if !ok {
		return nil, fmt.Errorf("document %q missing %s metadata", vd.ID, docMetadataKey)
	}
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unmarshaling document %q: %w", vd.ID, err)
	}
	return &d, nil
}

// idInserter is satisfied by indexes (like the in-memory reference one)
// that can store a document under a caller-chosen ID. A real embedding
// backend may only expose the narrower Insert-assigns-ID contract, in
// which case Put falls back to using whatever ID it assigns.
type idInserter interface {
	InsertWithID(ctx context.Context, id, text string, metadata map[string]string) error
}

// Put inserts a new document (ID empty) or replaces an existing one
// (delete-by-id then insert, the idiom spec.md §4.11 prescribes for
// updates) and returns the stored ID.
func (s *Store) Put(ctx context.Context, d *Document) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else {
		if _, err := s.Index.DeleteByFilter(ctx, map[string]string{"id": d.ID}); err != nil {
			return "", fmt.Errorf("replacing document %q: %w", d.ID, err)
		}
	}
	meta, err := toMetadata(d)
	if err != nil {
		return "", err
	}
	meta["id"] = d.ID

	if inserter, ok := s.Index.(idInserter); ok {
		if err := inserter.InsertWithID(ctx, d.ID, d.Text, meta); err != nil {
			return "", fmt.Errorf("storing document %q: %w", d.ID, err)
		}
		return d.ID, nil
	}
	assigned, err := s.Index.Insert(ctx, d.Text, meta)
	if err != nil {
		return "", fmt.Errorf("storing document: %w", err)
	}
	d.ID = assigned
	return assigned, nil
}

// Get returns the document with the given ID, or nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	all, err := s.Index.AllDocs(ctx)
	if err != nil {
		return nil, err
	}
	vd, ok := all[id]
	if !ok {
		return nil, nil
	}
	return fromVecDoc(vd)
}

// All returns every stored document, optionally restricted by area.
func (s *Store) All(ctx context.Context, area Area) ([]*Document, error) {
	all, err := s.Index.AllDocs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(all))
	for _, vd := range all {
		d, err := fromVecDoc(vd)
		if err != nil {
			continue
		}
		if area != "" && d.Area != area {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Scored is a Document with its similarity score from Search.
type Scored struct {
	Doc   *Document
	Score float64
}

// Search runs a similarity query restricted to filter, returning typed
// documents.
func (s *Store) Search(ctx context.Context, query string, filter map[string]string, k int, threshold float64) ([]Scored, error) {
	hits, err := s.Index.Search(ctx, query, filter, k, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		d, err := fromVecDoc(h.Doc)
		if err != nil {
			continue
		}
		out = append(out, Scored{Doc: d, Score: h.Score})
	}
	return out, nil
}

// DeleteByID removes a document by its ID.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	_, err := s.Index.DeleteByFilter(ctx, map[string]string{"id": id})
	return err
}
