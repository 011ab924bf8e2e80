package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	memmodel "github.com/wardenai/warden/internal/memory/model"
)

// capitalizedPhraseRE extracts runs of capitalized words, spec.md
// §4.11's "capitalized-noun-phrase extraction" for the second match
// strategy.
var capitalizedPhraseRE = regexp.MustCompile(`\b[A-Z][a-zA-Z']*(?:\s+[A-Z][a-zA-Z']*)*\b`)

// QueryContext implements spec.md §4.11's entity-aware query: for a
// user-message turn, scan area=="ontology" memories for (a) substring
// matches of any alias/name of length >= 3 against query, and (b)
// capitalized-noun-phrase extraction plus similarity search; expand one
// hop via the relationships log filtered by min_confidence_to_surface;
// return a structured "# Ontology Context" block, or "" if nothing
// matched.
func (s *Store) QueryContext(ctx context.Context, query string) (string, error) {
	docs, err := s.docs.All(ctx, memmodel.AreaOntology)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	byID := make(map[string]*memmodel.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	matched := map[string]*memmodel.Document{}
	lowerQuery := strings.ToLower(query)
	for _, d := range docs {
		if d.Ontology == nil {
			continue
		}
		for _, alias := range aliasesOf(d) {
			if len(alias) >= 3 && strings.Contains(lowerQuery, strings.ToLower(alias)) {
				matched[d.ID] = d
				break
			}
		}
	}

	for _, phrase := range capitalizedPhraseRE.FindAllString(query, -1) {
		hits, err := s.docs.Search(ctx, phrase, map[string]string{"area": string(memmodel.AreaOntology)}, 3, 0.5)
		if err != nil {
			continue
		}
		for _, h := range hits {
			if h.Doc.Ontology != nil {
				matched[h.Doc.ID] = h.Doc
			}
		}
	}

	if len(matched) == 0 {
		return "", nil
	}

	minConfidence := s.cfg.RelationshipExtraction.MinConfidenceToSurface
	var rels []*ontologyRelView
	if s.rels != nil {
		for _, rel := range s.rels.All() {
			if rel.Deprecated || rel.Confidence < minConfidence {
				continue
			}
			rels = append(rels, &ontologyRelView{rel.FromEntity, rel.ToEntity, rel.Type, rel.Confidence})
		}
	}

	expanded := map[string]*memmodel.Document{}
	for id := range matched {
		for _, rel := range rels {
			var otherID string
			switch id {
			case rel.from:
				otherID = rel.to
			case rel.to:
				otherID = rel.from
			default:
				continue
			}
			if other, ok := byID[otherID]; ok && matched[otherID] == nil {
				expanded[otherID] = other
			}
		}
	}

	return renderContextBlock(matched, expanded), nil
}

type ontologyRelView struct {
	from, to, relType string
	confidence        float64
}

func aliasesOf(d *memmodel.Document) []string {
	out := make([]string, 0, 1+len(d.Ontology.Aliases))
	if name := d.Ontology.Properties["name"]; name != "" {
		out = append(out, name)
	}
	out = append(out, d.Ontology.Aliases...)
	return out
}

func renderContextBlock(matched, expanded map[string]*memmodel.Document) string {
	var b strings.Builder
	b.WriteString("# Ontology Context\n")
	for _, id := range sortedIDs(matched) {
		d := matched[id]
		fmt.Fprintf(&b, "- %s (%s): %s\n", displayName(d), d.Ontology.EntityType, d.Text)
	}
	if len(expanded) > 0 {
		b.WriteString("\nRelated entities:\n")
		for _, id := range sortedIDs(expanded) {
			d := expanded[id]
			fmt.Fprintf(&b, "- %s (%s)\n", displayName(d), d.Ontology.EntityType)
		}
	}
	return b.String()
}

func displayName(d *memmodel.Document) string {
	if name := d.Ontology.Properties["name"]; name != "" {
		return name
	}
	return d.ID
}

func sortedIDs(m map[string]*memmodel.Document) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
