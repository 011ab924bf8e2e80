package resolver

import (
	"fmt"
	"time"

	"github.com/wardenai/warden/internal/ontology/model"
)

// mergeGroup implements spec.md §4.10 step 5's merge rule over a
// union-find group: members are merged sequentially in index order;
// higher provenance confidence wins on property conflicts; aliases
// accumulate; relationships concatenate; both provenances join
// provenance_chain; each step is recorded in merge_history.
func mergeGroup(cands []*model.CandidateEntity, members []int, now func() time.Time) (*model.ResolvedEntity, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("empty merge group")
	}
	first := cands[members[0]]
	acc := &model.ResolvedEntity{
		EntityType:      first.EntityType,
		Properties:      propertiesOf(first),
		Aliases:         append([]string{first.Properties.Name}, first.Properties.Aliases...),
		Relationships:   append([]model.RelationshipHint(nil), first.Relationships...),
		ProvenanceChain: []model.Provenance{first.Provenance},
	}

	accConfidence := first.Provenance.Confidence
	for _, idx := range members[1:] {
		next := cands[idx]
		nextConfidence := next.Provenance.Confidence
		nextProps := propertiesOf(next)

		for k, v := range nextProps {
			if existing, ok := acc.Properties[k]; !ok || existing == "" {
				acc.Properties[k] = v
				continue
			}
			if v == "" || v == acc.Properties[k] {
				continue
			}
			if nextConfidence > accConfidence {
				acc.Properties[k] = v
			}
		}

		acc.Aliases = appendUniqueStrings(acc.Aliases, next.Properties.Name)
		for _, alias := range next.Properties.Aliases {
			acc.Aliases = appendUniqueStrings(acc.Aliases, alias)
		}
		acc.Relationships = append(acc.Relationships, next.Relationships...)
		acc.ProvenanceChain = append(acc.ProvenanceChain, next.Provenance)

		acc.MergeHistory = append(acc.MergeHistory, model.MergeStep{
			WinnerConfidence: maxFloat(accConfidence, nextConfidence),
			LoserConfidence:  minFloat(accConfidence, nextConfidence),
			MergedAt:         now(),
		})
		if nextConfidence > accConfidence {
			accConfidence = nextConfidence
		}
	}
	return acc, nil
}

func propertiesOf(c *model.CandidateEntity) map[string]string {
	out := map[string]string{}
	if c.Properties.Name != "" {
		out["name"] = c.Properties.Name
	}
	if c.Properties.Address != "" {
		out["address"] = c.Properties.Address
	}
	for k, v := range c.Properties.Identifiers {
		out[k] = v
	}
	return out
}

func appendUniqueStrings(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
